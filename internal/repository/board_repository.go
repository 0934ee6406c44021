package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrBoardNotFound is returned when a board id has no row.
var ErrBoardNotFound = errors.New("board not found")

// KeywordEntry is one keyword candidate for routing, joined with its board.
// Rows are ordered by (board_id, keyword_id) so the routing engine's
// first-match tie-break is deterministic.
type KeywordEntry struct {
	KeywordID int64  `db:"keyword_id"`
	BoardID   int64  `db:"board_id"`
	Keyword   string `db:"keyword"`
}

// BoardRepositoryInterface defines board access for the routing engine.
type BoardRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*Board, error)
	// ExclusiveFor returns the non-archived board bound exclusively to the
	// inbox, or nil. If configuration ever violates the at-most-one
	// invariant, the lowest board id wins.
	ExclusiveFor(ctx context.Context, inboxID int64) (*Board, error)
	// KeywordEntriesFor returns all keywords of the account's non-archived
	// boards without an exclusive-inbox binding, in deterministic order.
	KeywordEntriesFor(ctx context.Context, accountID int64) ([]KeywordEntry, error)
}

// BoardRepo implements BoardRepositoryInterface using PostgreSQL.
type BoardRepo struct {
	db *sqlx.DB
}

// NewBoardRepo creates a new BoardRepo instance.
func NewBoardRepo(db *sqlx.DB) *BoardRepo {
	return &BoardRepo{db: db}
}

// GetByID fetches one board.
func (r *BoardRepo) GetByID(ctx context.Context, id int64) (*Board, error) {
	var board Board
	err := r.db.GetContext(ctx, &board, `
		SELECT * FROM boards WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get board %d: %w", id, err)
	}
	return &board, nil
}

// ExclusiveFor resolves the exclusive-inbox binding for an inbox.
func (r *BoardRepo) ExclusiveFor(ctx context.Context, inboxID int64) (*Board, error) {
	var board Board
	err := r.db.GetContext(ctx, &board, `
		SELECT * FROM boards
		WHERE exclusive_inbox_id = $1 AND is_archived = FALSE
		ORDER BY id
		LIMIT 1
	`, inboxID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exclusive board for inbox %d: %w", inboxID, err)
	}
	return &board, nil
}

// KeywordEntriesFor lists keyword candidates for keyword routing.
func (r *BoardRepo) KeywordEntriesFor(ctx context.Context, accountID int64) ([]KeywordEntry, error) {
	var entries []KeywordEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT k.id AS keyword_id, k.board_id, k.keyword
		FROM board_keywords k
		JOIN boards b ON b.id = k.board_id
		WHERE b.account_id = $1
		  AND b.exclusive_inbox_id IS NULL
		  AND b.is_archived = FALSE
		ORDER BY k.board_id, k.id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("keyword entries for account %d: %w", accountID, err)
	}
	return entries, nil
}
