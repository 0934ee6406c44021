package notifier

import (
	"bytes"
	"context"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/hatchdesk/hatchdesk/backend/internal/config"
)

// SMTPSender delivers messages through the configured default SMTP relay.
type SMTPSender struct {
	cfg config.SMTPConfig
}

// NewSMTPSender creates an SMTPSender.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send submits one message. An empty from address falls back to the
// configured default sender.
func (s *SMTPSender) Send(ctx context.Context, from, to string, msg []byte) error {
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		from = "noreply@" + s.cfg.Host
	}

	var auth sasl.Client
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)
	}

	if err := smtp.SendMail(s.cfg.Addr(), auth, from, []string{to}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
