package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ProcessedEmailRepositoryInterface defines the lookup the duplicate
// detector needs. Records are written by the ticket and standby
// repositories as part of their per-message transactions.
type ProcessedEmailRepositoryInterface interface {
	// ExistsRecent reports whether a record matches (inbox, sender,
	// fingerprint) with processed_at at or after the cutoff.
	ExistsRecent(ctx context.Context, inboxID int64, sender, subjectHash string, since time.Time) (bool, error)
}

// ProcessedEmailRepo implements ProcessedEmailRepositoryInterface using
// PostgreSQL.
type ProcessedEmailRepo struct {
	db *sqlx.DB
}

// NewProcessedEmailRepo creates a new ProcessedEmailRepo instance.
func NewProcessedEmailRepo(db *sqlx.DB) *ProcessedEmailRepo {
	return &ProcessedEmailRepo{db: db}
}

// ExistsRecent runs the windowed duplicate lookup. Backed by the
// (inbox_id, sender_email, subject_hash, processed_at) index.
func (r *ProcessedEmailRepo) ExistsRecent(ctx context.Context, inboxID int64, sender, subjectHash string, since time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM processed_emails
			WHERE inbox_id = $1
			  AND sender_email = $2
			  AND subject_hash = $3
			  AND processed_at >= $4
		)
	`, inboxID, sender, subjectHash, since)
	if err != nil {
		return false, fmt.Errorf("duplicate lookup for inbox %d: %w", inboxID, err)
	}
	return exists, nil
}
