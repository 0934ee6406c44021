// Package ticketer turns a routed message into a persisted ticket, or into
// a standby-queue entry when routing found no destination. It owns ticket
// identifier allocation and the per-message transactional write of the
// result together with its processed-email record.
package ticketer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hatchdesk/hatchdesk/backend/internal/dedup"
	"github.com/hatchdesk/hatchdesk/backend/internal/notifier"
	"github.com/hatchdesk/hatchdesk/backend/internal/parser"
	"github.com/hatchdesk/hatchdesk/backend/internal/repository"
	"github.com/hatchdesk/hatchdesk/backend/internal/routing"
)

// Field limits, matching the schema.
const (
	MaxTitleRunes       = 255
	MaxDescriptionRunes = 6000
	maxAddressRunes     = 255

	// maxIDAttempts bounds identifier allocation. Exhausting it at UUIDv4
	// collision probabilities means something is deeply wrong with the
	// store, so it surfaces as a loud, distinct error instead of a retry.
	maxIDAttempts = 5
)

// ErrIDExhausted is returned when no collision-free ticket identifier could
// be allocated within the attempt bound.
var ErrIDExhausted = errors.New("ticket identifier allocation exhausted retry attempts")

// Notifier is the fire-and-forget handoff for confirmation mail. The
// materializer's obligation ends once the notice is enqueued.
type Notifier interface {
	EnqueueConfirmation(n notifier.Confirmation)
}

// Materializer persists routed messages.
type Materializer struct {
	tickets repository.TicketRepositoryInterface
	standby repository.StandbyRepositoryInterface
	boards  repository.BoardRepositoryInterface
	inboxes repository.InboxRepositoryInterface
	notify  Notifier
	log     *slog.Logger
	newUUID func() uuid.UUID
}

// NewMaterializer creates a Materializer.
func NewMaterializer(
	tickets repository.TicketRepositoryInterface,
	standby repository.StandbyRepositoryInterface,
	boards repository.BoardRepositoryInterface,
	inboxes repository.InboxRepositoryInterface,
	notify Notifier,
	log *slog.Logger,
) *Materializer {
	return &Materializer{
		tickets: tickets,
		standby: standby,
		boards:  boards,
		inboxes: inboxes,
		notify:  notify,
		log:     log,
		newUUID: uuid.New,
	}
}

// Materialize commits the outcome of a routing decision. A routed decision
// yields a ticket and a queued confirmation notice; an unrouted one yields
// a standby-queue item and no notification. Either way the processed-email
// record commits in the same transaction as the result.
func (m *Materializer) Materialize(
	ctx context.Context,
	inbox *repository.Inbox,
	msg parser.ParsedMessage,
	decision routing.Decision,
) (*repository.Ticket, error) {
	record := &repository.ProcessedEmail{
		InboxID:     inbox.ID,
		MessageID:   truncateRunes(msg.MessageID, maxAddressRunes),
		SenderEmail: truncateRunes(msg.Sender, maxAddressRunes),
		SubjectHash: dedup.Fingerprint(msg.Subject),
	}

	if !decision.Routed() {
		item := &repository.StandbyQueueItem{
			AccountID:     inbox.AccountID,
			EmailSubject:  truncateRunes(msg.Subject, MaxTitleRunes),
			EmailBody:     msg.Body,
			SenderEmail:   msg.Sender,
			FailureReason: string(decision.Reason),
			RetryCount:    0,
		}
		if err := m.standby.CreateFromEmail(ctx, item, record); err != nil {
			return nil, fmt.Errorf("persist standby item: %w", err)
		}
		m.log.Info("message placed on standby queue",
			"inbox_id", inbox.ID, "sender", msg.Sender, "reason", decision.Reason)
		return nil, nil
	}

	id, err := m.allocateTicketUUID(ctx)
	if err != nil {
		return nil, err
	}

	ticket := &repository.Ticket{
		UUID:         id,
		BoardID:      decision.BoardID,
		Title:        truncateRunes(msg.Subject, MaxTitleRunes),
		Description:  truncateRunes(msg.Body, MaxDescriptionRunes),
		State:        repository.TicketStateNew,
		CreatorEmail: msg.Sender,
		Source:       repository.TicketSourceEmail,
	}
	if err := m.tickets.CreateFromEmail(ctx, ticket, record); err != nil {
		return nil, fmt.Errorf("persist ticket: %w", err)
	}

	m.log.Info("ticket created from email",
		"inbox_id", inbox.ID, "board_id", ticket.BoardID, "ticket_uuid", ticket.UUID)

	m.enqueueConfirmation(ctx, inbox, ticket)
	return ticket, nil
}

// allocateTicketUUID draws candidates until one is free in both the ticket
// set and the external-ticket reference set. Concurrent allocators are safe:
// a candidate that races past this check still hits the unique index, and
// the whole message is retried on the next cycle.
func (m *Materializer) allocateTicketUUID(ctx context.Context) (uuid.UUID, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := m.newUUID()
		inUse, err := m.tickets.UUIDInUse(ctx, id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("check identifier uniqueness: %w", err)
		}
		if !inUse {
			return id, nil
		}
		m.log.Warn("ticket identifier collision, retrying", "attempt", attempt+1)
	}
	return uuid.Nil, ErrIDExhausted
}

// enqueueConfirmation hands the confirmation notice to the outbound queue.
// Failures to even resolve a sender address are logged and swallowed; they
// never unwind the already-committed ticket.
func (m *Materializer) enqueueConfirmation(ctx context.Context, inbox *repository.Inbox, ticket *repository.Ticket) {
	boardName := ""
	if board, err := m.boards.GetByID(ctx, ticket.BoardID); err == nil {
		boardName = board.Name
	}

	from := inbox.FromAddress
	if from == "" {
		var err error
		from, err = m.inboxes.ActiveFromAddress(ctx, inbox.AccountID)
		if err != nil {
			m.log.Warn("no sender address for confirmation",
				"inbox_id", inbox.ID, "error", err)
		}
	}

	m.notify.EnqueueConfirmation(notifier.Confirmation{
		To:          ticket.CreatorEmail,
		From:        from,
		TicketUUID:  ticket.UUID.String(),
		Title:       ticket.Title,
		Description: ticket.Description,
		BoardName:   boardName,
	})
}

// truncateRunes cuts s to at most n runes without splitting a multi-byte
// sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
