package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StandbyRepositoryInterface defines standby queue persistence for the
// materializer. The core only ever appends; operators consume items through
// the management surface.
type StandbyRepositoryInterface interface {
	// CreateFromEmail inserts the standby item and its processed-email
	// record in one transaction.
	CreateFromEmail(ctx context.Context, item *StandbyQueueItem, record *ProcessedEmail) error
}

// StandbyRepo implements StandbyRepositoryInterface using PostgreSQL.
type StandbyRepo struct {
	db *sqlx.DB
}

// NewStandbyRepo creates a new StandbyRepo instance.
func NewStandbyRepo(db *sqlx.DB) *StandbyRepo {
	return &StandbyRepo{db: db}
}

// CreateFromEmail persists an unrouted message with its dedup record.
func (r *StandbyRepo) CreateFromEmail(ctx context.Context, item *StandbyQueueItem, record *ProcessedEmail) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin standby transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO standby_queue_items
			(account_id, email_subject, email_body, sender_email, failure_reason, original_board_id, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, item.AccountID, item.EmailSubject, item.EmailBody, item.SenderEmail,
		item.FailureReason, item.OriginalBoardID, item.RetryCount,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert standby item: %w", err)
	}

	if err := insertProcessedEmail(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit standby transaction: %w", err)
	}
	return nil
}
