// Package routing decides which board a parsed message lands on. Decision
// order: an exclusive-inbox binding wins outright, then case-insensitive
// keyword matching over the account's remaining boards, then the standby
// queue. Both scans are deterministic: boards ascending by id, keywords
// ascending by creation order.
package routing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hatchdesk/hatchdesk/backend/internal/repository"
)

// FailureReason is the closed set of reasons a message did not become a
// ticket. The values are stored verbatim in standby_queue_items.
type FailureReason string

const (
	// ReasonNoKeywordMatch means routing evaluated cleanly and no keyword
	// matched the subject.
	ReasonNoKeywordMatch FailureReason = "no_keyword_match"
	// ReasonNoBoardMatch means routing failed before keywords could be
	// evaluated (a lookup error), distinct from a clean miss.
	ReasonNoBoardMatch FailureReason = "no_board_match"
	// ReasonExternalCreationFailed is reserved for the external-platform
	// ticket path; the ingestion core never emits it.
	ReasonExternalCreationFailed FailureReason = "external_creation_failed"
)

// RouteInput is the message-and-context tuple the engine decides on.
type RouteInput struct {
	AccountID int64
	InboxID   int64
	Sender    string
	Subject   string
	Body      string
}

// Decision is either a destination board id or a failure reason.
type Decision struct {
	BoardID int64
	// MatchedKeyword is set when the decision came from keyword routing.
	MatchedKeyword string
	Reason         FailureReason
}

// Routed reports whether the decision carries a destination board.
func (d Decision) Routed() bool {
	return d.Reason == ""
}

// Engine evaluates routing decisions against board configuration.
type Engine struct {
	boards repository.BoardRepositoryInterface
	log    *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(boards repository.BoardRepositoryInterface, log *slog.Logger) *Engine {
	return &Engine{boards: boards, log: log}
}

// Route never returns an error: an unexpected lookup failure is caught here
// and reported as ReasonNoBoardMatch so the message still reaches the
// standby queue instead of crashing the cycle.
func (e *Engine) Route(ctx context.Context, in RouteInput) Decision {
	exclusive, err := e.boards.ExclusiveFor(ctx, in.InboxID)
	if err != nil {
		e.log.Error("routing aborted on exclusive-board lookup",
			"inbox_id", in.InboxID, "error", err)
		return Decision{Reason: ReasonNoBoardMatch}
	}
	if exclusive != nil {
		e.log.Info("routed via exclusive inbox",
			"inbox_id", in.InboxID, "board_id", exclusive.ID)
		return Decision{BoardID: exclusive.ID}
	}

	entries, err := e.boards.KeywordEntriesFor(ctx, in.AccountID)
	if err != nil {
		e.log.Error("routing aborted on keyword lookup",
			"account_id", in.AccountID, "error", err)
		return Decision{Reason: ReasonNoBoardMatch}
	}

	subject := strings.ToLower(in.Subject)
	for _, entry := range entries {
		if entry.Keyword == "" {
			continue
		}
		if strings.Contains(subject, strings.ToLower(entry.Keyword)) {
			e.log.Info("routed via keyword",
				"inbox_id", in.InboxID, "board_id", entry.BoardID, "keyword", entry.Keyword)
			return Decision{BoardID: entry.BoardID, MatchedKeyword: entry.Keyword}
		}
	}

	return Decision{Reason: ReasonNoKeywordMatch}
}
