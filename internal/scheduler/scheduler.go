// Package scheduler runs the per-inbox polling jobs. Each inbox gets one
// ticker at its configured interval; registering an inbox again replaces its
// job, and at most one run per inbox is in flight at any time. Ticks that
// arrive while the previous run is still going are dropped, not queued.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hatchdesk/hatchdesk/backend/internal/metrics"
)

// JobFunc is the work executed on each tick for one inbox.
type JobFunc func(ctx context.Context, inboxID int64) error

// Scheduler owns the ticker goroutines. Safe for concurrent use.
type Scheduler struct {
	run JobFunc
	log *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[int64]*job
	wg   sync.WaitGroup
}

type job struct {
	inboxID  int64
	interval time.Duration
	stop     chan struct{}
	inFlight atomic.Bool
}

// New creates a Scheduler. Jobs start ticking as soon as they are added.
func New(run JobFunc, log *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:    run,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[int64]*job),
	}
}

// Add registers a polling job for an inbox. If the inbox already has a job
// it is replaced, so interval changes take effect by re-adding.
func (s *Scheduler) Add(inboxID int64, interval time.Duration) {
	if interval <= 0 {
		s.log.Warn("refusing job with non-positive interval", "inbox_id", inboxID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[inboxID]; ok {
		close(existing.stop)
	}

	j := &job{
		inboxID:  inboxID,
		interval: interval,
		stop:     make(chan struct{}),
	}
	s.jobs[inboxID] = j

	s.wg.Add(1)
	go s.tickLoop(j)

	s.log.Info("polling job registered", "inbox_id", inboxID, "interval", interval)
}

// Remove unregisters an inbox's polling job. A run already in flight is not
// interrupted; it just won't be followed by another.
func (s *Scheduler) Remove(inboxID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[inboxID]; ok {
		close(j.stop)
		delete(s.jobs, inboxID)
		s.log.Info("polling job removed", "inbox_id", inboxID)
	}
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, j := range s.jobs {
		close(j.stop)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) tickLoop(j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.fire(j)
		case <-j.stop:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// fire launches one run unless the previous one for this inbox is still in
// flight, in which case the tick is dropped.
func (s *Scheduler) fire(j *job) {
	if !j.inFlight.CompareAndSwap(false, true) {
		metrics.SchedulerOverlapsDropped.Inc()
		s.log.Debug("dropping tick, previous run still in flight", "inbox_id", j.inboxID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer j.inFlight.Store(false)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("polling job panicked", "inbox_id", j.inboxID, "panic", r)
			}
		}()

		if err := s.run(s.ctx, j.inboxID); err != nil {
			s.log.Error("polling job failed", "inbox_id", j.inboxID, "error", err)
		}
	}()
}
