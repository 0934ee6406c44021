// Package notifier delivers outbound transactional mail (ticket
// confirmations and status-change notices) decoupled from the persistence
// path: the pipeline hands a notice to a bounded queue and moves on, and a
// single worker drains the queue over SMTP. Send failures are logged here
// and never surface back into the polling pipeline.
package notifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hatchdesk/hatchdesk/backend/internal/metrics"
)

// Confirmation is a ticket-created notice for the submitter.
type Confirmation struct {
	To          string
	From        string
	TicketUUID  string
	Title       string
	Description string
	BoardName   string
}

// StatusChange is a ticket-state-transition notice for the submitter.
type StatusChange struct {
	To            string
	From          string
	TicketUUID    string
	Title         string
	BoardName     string
	PreviousState string
	NewState      string
	Comment       string
}

// Sender delivers one rendered message. Implemented by SMTPSender; tests
// substitute a recorder.
type Sender interface {
	Send(ctx context.Context, from, to string, msg []byte) error
}

type notice struct {
	kind         string
	confirmation Confirmation
	statusChange StatusChange
}

// Queue is the bounded fire-and-forget handoff between the pipeline and the
// SMTP worker.
type Queue struct {
	ch            chan notice
	sender        Sender
	log           *slog.Logger
	ticketBaseURL string

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewQueue creates a Queue with the given capacity. Enqueues beyond the
// capacity are dropped, never blocked on.
func NewQueue(sender Sender, capacity int, ticketBaseURL string, log *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{
		ch:            make(chan notice, capacity),
		sender:        sender,
		log:           log,
		ticketBaseURL: ticketBaseURL,
	}
}

// Start launches the delivery worker. The worker exits when ctx is
// cancelled and the queue has drained.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.wg.Add(1)
		go q.run(ctx)
	})
}

// Wait blocks until the worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// EnqueueConfirmation queues a confirmation notice without blocking.
func (q *Queue) EnqueueConfirmation(n Confirmation) {
	q.enqueue(notice{kind: "confirmation", confirmation: n})
}

// EnqueueStatusChange queues a status-change notice without blocking.
func (q *Queue) EnqueueStatusChange(n StatusChange) {
	q.enqueue(notice{kind: "status_change", statusChange: n})
}

func (q *Queue) enqueue(n notice) {
	select {
	case q.ch <- n:
	default:
		metrics.NotificationsTotal.WithLabelValues(n.kind, "dropped").Inc()
		q.log.Warn("notification queue full, dropping notice", "kind", n.kind)
	}
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case n := <-q.ch:
			q.deliver(ctx, n)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case n := <-q.ch:
					q.deliver(context.Background(), n)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(ctx context.Context, n notice) {
	var from, to string
	var msg []byte
	switch n.kind {
	case "confirmation":
		from, to = n.confirmation.From, n.confirmation.To
		msg = renderConfirmation(n.confirmation, q.ticketBaseURL)
	case "status_change":
		from, to = n.statusChange.From, n.statusChange.To
		msg = renderStatusChange(n.statusChange, q.ticketBaseURL)
	default:
		return
	}

	if to == "" {
		metrics.NotificationsTotal.WithLabelValues(n.kind, "dropped").Inc()
		return
	}

	if err := q.sender.Send(ctx, from, to, msg); err != nil {
		metrics.NotificationsTotal.WithLabelValues(n.kind, "failed").Inc()
		q.log.Error("notification delivery failed", "kind", n.kind, "to", to, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(n.kind, "sent").Inc()
	q.log.Info("notification delivered", "kind", n.kind, "to", to)
}
