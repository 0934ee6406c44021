package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TicketRepositoryInterface defines ticket persistence for the materializer.
type TicketRepositoryInterface interface {
	// UUIDInUse reports whether the candidate identifier already exists,
	// across both tickets and external ticket references.
	UUIDInUse(ctx context.Context, id uuid.UUID) (bool, error)
	// CreateFromEmail inserts the ticket and its processed-email record in
	// one transaction, so a message's fingerprint and its result commit
	// together or not at all.
	CreateFromEmail(ctx context.Context, ticket *Ticket, record *ProcessedEmail) error
}

// TicketRepo implements TicketRepositoryInterface using PostgreSQL.
type TicketRepo struct {
	db *sqlx.DB
}

// NewTicketRepo creates a new TicketRepo instance.
func NewTicketRepo(db *sqlx.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// UUIDInUse checks both identifier sets. Concurrent allocators are handled
// by the caller's retry loop together with the unique index, not by locking.
func (r *TicketRepo) UUIDInUse(ctx context.Context, id uuid.UUID) (bool, error) {
	var inUse bool
	err := r.db.GetContext(ctx, &inUse, `
		SELECT EXISTS (SELECT 1 FROM tickets WHERE uuid = $1)
		    OR EXISTS (SELECT 1 FROM external_tickets WHERE uuid = $1)
	`, id)
	if err != nil {
		return false, fmt.Errorf("check ticket uuid: %w", err)
	}
	return inUse, nil
}

// CreateFromEmail persists an email-origin ticket with its dedup record.
func (r *TicketRepo) CreateFromEmail(ctx context.Context, ticket *Ticket, record *ProcessedEmail) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ticket transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO tickets (uuid, board_id, title, description, state, creator_email, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, ticket.UUID, ticket.BoardID, ticket.Title, ticket.Description,
		ticket.State, ticket.CreatorEmail, ticket.Source,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}

	if err := insertProcessedEmail(ctx, tx, record); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ticket transaction: %w", err)
	}
	return nil
}

// insertProcessedEmail appends the dedup fingerprint inside the caller's
// transaction. ON CONFLICT keeps a re-fetched message idempotent on the
// (inbox_id, message_id) unique index.
func insertProcessedEmail(ctx context.Context, tx *sqlx.Tx, record *ProcessedEmail) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO processed_emails (inbox_id, message_id, sender_email, subject_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (inbox_id, message_id) DO NOTHING
	`, record.InboxID, record.MessageID, record.SenderEmail, record.SubjectHash)
	if err != nil {
		return fmt.Errorf("insert processed email: %w", err)
	}
	return nil
}
