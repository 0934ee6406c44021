package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrInboxNotFound is returned when an inbox id has no row.
	ErrInboxNotFound = errors.New("inbox not found")
)

// InboxRepositoryInterface defines inbox access for the polling pipeline.
type InboxRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*Inbox, error)
	ListActive(ctx context.Context) ([]Inbox, error)
	// UpdateLastPolled advances last_polled_at; it is only called at the end
	// of a cycle whose connector phase succeeded.
	UpdateLastPolled(ctx context.Context, id int64, polledAt time.Time) error
	// ActiveFromAddress returns the from address of any active inbox owned
	// by the account, for use when a notification has no better sender.
	ActiveFromAddress(ctx context.Context, accountID int64) (string, error)
}

// InboxRepo implements InboxRepositoryInterface using PostgreSQL.
type InboxRepo struct {
	db *sqlx.DB
}

// NewInboxRepo creates a new InboxRepo instance.
func NewInboxRepo(db *sqlx.DB) *InboxRepo {
	return &InboxRepo{db: db}
}

// GetByID fetches one inbox configuration.
func (r *InboxRepo) GetByID(ctx context.Context, id int64) (*Inbox, error) {
	var inbox Inbox
	err := r.db.GetContext(ctx, &inbox, `
		SELECT * FROM email_inboxes WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInboxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inbox %d: %w", id, err)
	}
	return &inbox, nil
}

// ListActive returns all inboxes flagged active, used at scheduler bootstrap.
func (r *InboxRepo) ListActive(ctx context.Context) ([]Inbox, error) {
	var inboxes []Inbox
	err := r.db.SelectContext(ctx, &inboxes, `
		SELECT * FROM email_inboxes WHERE is_active = TRUE ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list active inboxes: %w", err)
	}
	return inboxes, nil
}

// UpdateLastPolled advances the last-polled timestamp. The WHERE clause keeps
// the column monotonic even if two cycles race.
func (r *InboxRepo) UpdateLastPolled(ctx context.Context, id int64, polledAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_inboxes
		SET last_polled_at = $2, updated_at = NOW()
		WHERE id = $1 AND (last_polled_at IS NULL OR last_polled_at < $2)
	`, id, polledAt)
	if err != nil {
		return fmt.Errorf("update last_polled_at for inbox %d: %w", id, err)
	}
	return nil
}

// ActiveFromAddress picks the lowest-id active inbox with a from address.
func (r *InboxRepo) ActiveFromAddress(ctx context.Context, accountID int64) (string, error) {
	var from string
	err := r.db.GetContext(ctx, &from, `
		SELECT from_address FROM email_inboxes
		WHERE account_id = $1 AND is_active = TRUE AND from_address <> ''
		ORDER BY id
		LIMIT 1
	`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("active from address for account %d: %w", accountID, err)
	}
	return from, nil
}
