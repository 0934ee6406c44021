package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestAddRunsJobPeriodically(t *testing.T) {
	var runs atomic.Int64
	s := New(func(_ context.Context, inboxID int64) error {
		if inboxID != 1 {
			t.Errorf("inboxID = %d, want 1", inboxID)
		}
		runs.Add(1)
		return nil
	}, discardLogger())
	defer s.Stop()

	s.Add(1, 10*time.Millisecond)
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 3 })
}

func TestRemoveStopsJob(t *testing.T) {
	var runs atomic.Int64
	s := New(func(context.Context, int64) error {
		runs.Add(1)
		return nil
	}, discardLogger())
	defer s.Stop()

	s.Add(1, 10*time.Millisecond)
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 1 })

	s.Remove(1)
	// Let any in-flight tick settle, then verify the counter stops moving.
	time.Sleep(30 * time.Millisecond)
	before := runs.Load()
	time.Sleep(100 * time.Millisecond)
	if after := runs.Load(); after != before {
		t.Errorf("runs advanced from %d to %d after Remove", before, after)
	}
}

func TestAddReplacesExistingJob(t *testing.T) {
	var runs atomic.Int64
	s := New(func(context.Context, int64) error {
		runs.Add(1)
		return nil
	}, discardLogger())
	defer s.Stop()

	// The first registration would effectively never fire; re-adding with a
	// short interval must supersede it.
	s.Add(1, time.Hour)
	s.Add(1, 10*time.Millisecond)
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 1 })
}

func TestOverlappingTicksAreDropped(t *testing.T) {
	var inFlight atomic.Int64
	var maxSeen atomic.Int64

	s := New(func(context.Context, int64) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxSeen.Load()
			if n <= prev || maxSeen.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(60 * time.Millisecond)
		return nil
	}, discardLogger())
	defer s.Stop()

	s.Add(1, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
}

func TestStopWaitsForInflightRun(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool

	s := New(func(context.Context, int64) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return nil
	}, discardLogger())

	s.Add(1, 10*time.Millisecond)
	<-started
	s.Stop()

	if !finished.Load() {
		t.Error("Stop returned before the in-flight run completed")
	}
}

func TestJobPanicIsContained(t *testing.T) {
	var runs atomic.Int64
	s := New(func(context.Context, int64) error {
		runs.Add(1)
		panic("boom")
	}, discardLogger())
	defer s.Stop()

	s.Add(1, 10*time.Millisecond)
	// A panicking job must not kill the ticker; later ticks still fire.
	waitFor(t, 2*time.Second, func() bool { return runs.Load() >= 2 })
}

func TestAddRejectsNonPositiveInterval(t *testing.T) {
	var runs atomic.Int64
	s := New(func(context.Context, int64) error {
		runs.Add(1)
		return nil
	}, discardLogger())
	defer s.Stop()

	s.Add(1, 0)
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != 0 {
		t.Errorf("runs = %d, want 0 for rejected job", runs.Load())
	}
}
