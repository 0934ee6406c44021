// Package poller drives one poll cycle for one inbox: connect, list unseen
// messages, and pipe each through parse, duplicate check, routing, and
// materialization before marking it seen. Failures are scoped: a connector
// failure aborts the cycle untouched, a per-message failure skips only that
// message. Nothing here retries; the next scheduled tick is the retry.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hatchdesk/hatchdesk/backend/internal/dedup"
	"github.com/hatchdesk/hatchdesk/backend/internal/imapclient"
	"github.com/hatchdesk/hatchdesk/backend/internal/metrics"
	"github.com/hatchdesk/hatchdesk/backend/internal/parser"
	"github.com/hatchdesk/hatchdesk/backend/internal/repository"
	"github.com/hatchdesk/hatchdesk/backend/internal/routing"
	"github.com/hatchdesk/hatchdesk/backend/internal/ticketer"
)

// State names one phase of a poll cycle. A cycle moves through them in
// order; Aborted is terminal and reachable only from the connector phases
// (Connecting and Listing).
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateListing       State = "listing"
	StateParsing       State = "parsing"
	StateDuplicate     State = "duplicate_check"
	StateRouting       State = "routing"
	StateMaterializing State = "materializing"
	StateMarkSeen      State = "mark_seen"
	StateFinalizing    State = "finalizing"
	StateAborted       State = "aborted"
)

// Decrypter opens stored mailbox credentials.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Poller executes poll cycles. One Poller serves all inboxes; cycles for
// different inboxes may run concurrently, and the scheduler guarantees at
// most one concurrent cycle per inbox.
type Poller struct {
	inboxes      repository.InboxRepositoryInterface
	detector     *dedup.Detector
	engine       *routing.Engine
	materializer *ticketer.Materializer
	parse        *parser.Parser
	dial         imapclient.DialFunc
	cipher       Decrypter
	log          *slog.Logger
	now          func() time.Time
}

// New creates a Poller.
func New(
	inboxes repository.InboxRepositoryInterface,
	detector *dedup.Detector,
	engine *routing.Engine,
	materializer *ticketer.Materializer,
	parse *parser.Parser,
	dial imapclient.DialFunc,
	cipher Decrypter,
	log *slog.Logger,
) *Poller {
	return &Poller{
		inboxes:      inboxes,
		detector:     detector,
		engine:       engine,
		materializer: materializer,
		parse:        parse,
		dial:         dial,
		cipher:       cipher,
		log:          log,
		now:          time.Now,
	}
}

// cycle carries the per-run state machine.
type cycle struct {
	inbox *repository.Inbox
	state State
	log   *slog.Logger
}

func (c *cycle) transition(s State) {
	c.state = s
	c.log.Debug("poll cycle state", "state", s)
}

// PollInbox runs one cycle for one inbox. The returned error is
// informational for the scheduler's log; by the time it returns, every
// failure has already been handled within its own scope.
func (p *Poller) PollInbox(ctx context.Context, inboxID int64) error {
	started := p.now()

	inbox, err := p.inboxes.GetByID(ctx, inboxID)
	if err != nil {
		p.log.Error("poll skipped, inbox lookup failed", "inbox_id", inboxID, "error", err)
		metrics.PollCyclesTotal.WithLabelValues("aborted").Inc()
		return err
	}

	c := &cycle{
		inbox: inbox,
		state: StateIdle,
		log:   p.log.With("inbox_id", inbox.ID, "inbox_name", inbox.Name),
	}

	if !inbox.IsActive {
		c.log.Info("inbox inactive, skipping poll")
		metrics.PollCyclesTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	session, err := p.connect(c)
	if err != nil {
		// Fatal to the cycle: nothing processed, last_polled_at untouched.
		c.transition(StateAborted)
		c.log.Error("poll aborted, connector failure", "error", err)
		metrics.PollCyclesTotal.WithLabelValues("aborted").Inc()
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			c.log.Warn("imap logout failed", "error", err)
		}
	}()

	c.transition(StateListing)
	messages, err := session.ListUnseen()
	if err != nil {
		// Still a connector failure: nothing processed, last_polled_at
		// untouched. The deferred Close handles the open session.
		c.transition(StateAborted)
		c.log.Error("poll aborted, listing unseen messages failed", "error", err)
		metrics.PollCyclesTotal.WithLabelValues("aborted").Inc()
		return err
	}

	if len(messages) == 0 {
		c.log.Info("no unseen messages")
	} else {
		c.log.Info("processing messages", "count", len(messages))
	}

	for _, msg := range messages {
		p.processMessage(ctx, c, session, msg)
	}

	c.transition(StateFinalizing)
	if err := p.inboxes.UpdateLastPolled(ctx, inbox.ID, p.now().UTC()); err != nil {
		c.log.Error("updating last_polled_at failed", "error", err)
	}

	c.transition(StateIdle)
	metrics.PollCyclesTotal.WithLabelValues("completed").Inc()
	metrics.PollCycleDuration.Observe(p.now().Sub(started).Seconds())
	c.log.Info("poll cycle completed", "duration", p.now().Sub(started))
	return nil
}

// connect decrypts credentials and opens the IMAP session. Both steps are
// the Connecting phase: a decrypt failure is as fatal as a refused dial.
func (p *Poller) connect(c *cycle) (imapclient.Session, error) {
	c.transition(StateConnecting)

	password, err := p.cipher.Decrypt(c.inbox.IMAPPasswordEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt imap credentials: %w", err)
	}

	session, err := p.dial(imapclient.Config{
		Host:     c.inbox.IMAPHost,
		Port:     c.inbox.IMAPPort,
		Username: c.inbox.IMAPUsername,
		Password: password,
		UseSSL:   c.inbox.IMAPUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// processMessage runs one message through the per-message stages. Every
// failure is terminal to this message only: it is logged, counted, and the
// message is left unseen for the next cycle unless the pipeline already
// decided its outcome.
func (p *Poller) processMessage(ctx context.Context, c *cycle, session imapclient.Session, msg imapclient.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic while processing message", "seq_num", msg.SeqNum, "panic", r)
			metrics.MessagesProcessedTotal.WithLabelValues("failed").Inc()
		}
	}()

	c.transition(StateParsing)
	parsed := p.parse.Parse(msg.Raw)
	if parsed.Sender == "" || parsed.Subject == "" {
		c.log.Warn("discarding message with missing sender or subject", "seq_num", msg.SeqNum)
		metrics.MessagesProcessedTotal.WithLabelValues("discarded").Inc()
		return
	}

	c.transition(StateDuplicate)
	duplicate, err := p.detector.IsDuplicate(ctx, c.inbox.ID, parsed.Sender, parsed.Subject)
	if err != nil {
		c.log.Error("duplicate check failed, skipping message",
			"seq_num", msg.SeqNum, "error", err)
		metrics.MessagesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}
	if duplicate {
		// Known duplicate: mark seen so the mailbox stops re-listing it,
		// but create nothing.
		c.log.Info("skipping duplicate message", "sender", parsed.Sender)
		if err := session.MarkSeen(msg.SeqNum); err != nil {
			c.log.Warn("marking duplicate seen failed", "seq_num", msg.SeqNum, "error", err)
		}
		metrics.MessagesProcessedTotal.WithLabelValues("duplicate").Inc()
		return
	}

	c.transition(StateRouting)
	decision := p.engine.Route(ctx, routing.RouteInput{
		AccountID: c.inbox.AccountID,
		InboxID:   c.inbox.ID,
		Sender:    parsed.Sender,
		Subject:   parsed.Subject,
		Body:      parsed.Body,
	})

	c.transition(StateMaterializing)
	ticket, err := p.materializer.Materialize(ctx, c.inbox, parsed, decision)
	if err != nil {
		// Includes identifier exhaustion, which must fail loudly rather
		// than ever reuse an id. The message stays unseen for retry.
		c.log.Error("materialization failed, skipping message",
			"seq_num", msg.SeqNum, "sender", parsed.Sender, "error", err)
		metrics.MessagesProcessedTotal.WithLabelValues("failed").Inc()
		return
	}

	c.transition(StateMarkSeen)
	if err := session.MarkSeen(msg.SeqNum); err != nil {
		// Already persisted; the duplicate detector suppresses the re-fetch
		// next cycle.
		c.log.Warn("marking message seen failed", "seq_num", msg.SeqNum, "error", err)
	}

	if ticket != nil {
		metrics.MessagesProcessedTotal.WithLabelValues("ticket").Inc()
	} else {
		metrics.MessagesProcessedTotal.WithLabelValues("standby").Inc()
	}
}
