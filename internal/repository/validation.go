package repository

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateInbox checks an inbox configuration before it is handed to the
// scheduler. The configuration API is expected to enforce the same rules;
// this guards against rows written by other tools.
func ValidateInbox(inbox *Inbox) error {
	if err := validate.Struct(inbox); err != nil {
		return fmt.Errorf("inbox %d configuration invalid: %w", inbox.ID, err)
	}
	return nil
}
