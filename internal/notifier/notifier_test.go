package notifier

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedSend struct {
	from string
	to   string
	msg  string
}

type fakeSender struct {
	mu    sync.Mutex
	sends []recordedSend
	err   error
}

func (f *fakeSender) Send(_ context.Context, from, to string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, recordedSend{from: from, to: to, msg: string(msg)})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeSender) last() recordedSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[len(f.sends)-1]
}

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

func TestQueueDeliversConfirmation(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, 8, "https://desk.example.com", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.EnqueueConfirmation(Confirmation{
		To:          "alice@example.com",
		From:        "support@example.com",
		TicketUUID:  "11111111-2222-3333-4444-555555555555",
		Title:       "Printer on fire",
		Description: "Room 4.",
		BoardName:   "Facilities",
	})

	waitFor(t, 2*time.Second, func() bool { return sender.count() == 1 })

	got := sender.last()
	if got.to != "alice@example.com" {
		t.Errorf("to = %q", got.to)
	}
	if got.from != "support@example.com" {
		t.Errorf("from = %q", got.from)
	}
	if !strings.Contains(got.msg, "Subject: Ticket Submitted: Printer on fire") {
		t.Errorf("message missing subject line:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "https://desk.example.com/ticket/11111111-2222-3333-4444-555555555555") {
		t.Errorf("message missing ticket link:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "Facilities") {
		t.Errorf("message missing board name:\n%s", got.msg)
	}
}

func TestQueueDeliversStatusChange(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, 8, "https://desk.example.com", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.EnqueueStatusChange(StatusChange{
		To:            "alice@example.com",
		From:          "support@example.com",
		TicketUUID:    "u-1",
		Title:         "Printer on fire",
		BoardName:     "Facilities",
		PreviousState: "new",
		NewState:      "in_progress",
		Comment:       "Extinguisher dispatched.",
	})

	waitFor(t, 2*time.Second, func() bool { return sender.count() == 1 })

	got := sender.last()
	if !strings.Contains(got.msg, "Now In Progress") {
		t.Errorf("message missing humanized state:\n%s", got.msg)
	}
	if !strings.Contains(got.msg, "Extinguisher dispatched.") {
		t.Errorf("message missing manager comment:\n%s", got.msg)
	}
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	// No worker started: the channel fills and stays full.
	q := NewQueue(&fakeSender{}, 1, "http://x", discardLogger())

	done := make(chan struct{})
	go func() {
		q.EnqueueConfirmation(Confirmation{To: "a@b.c"})
		q.EnqueueConfirmation(Confirmation{To: "dropped@b.c"})
		q.EnqueueConfirmation(Confirmation{To: "dropped-too@b.c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	if len(q.ch) != 1 {
		t.Errorf("queued = %d, want 1 (overflow dropped)", len(q.ch))
	}
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, 8, "http://x", discardLogger())

	// Enqueue before the worker starts, then cancel immediately: the
	// worker's drain pass must still deliver what was queued.
	q.EnqueueConfirmation(Confirmation{To: "a@b.c"})
	q.EnqueueConfirmation(Confirmation{To: "d@e.f"})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()
	q.Wait()

	if sender.count() != 2 {
		t.Errorf("delivered = %d, want 2 after drain", sender.count())
	}
}

func TestDeliverSkipsEmptyRecipient(t *testing.T) {
	sender := &fakeSender{}
	q := NewQueue(sender, 8, "http://x", discardLogger())

	q.EnqueueConfirmation(Confirmation{To: ""})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()
	q.Wait()

	if sender.count() != 0 {
		t.Errorf("delivered = %d, want 0 for empty recipient", sender.count())
	}
}

func TestRenderConfirmationTruncatesPreview(t *testing.T) {
	long := strings.Repeat("x", 900)
	msg := string(renderConfirmation(Confirmation{
		To:          "a@b.c",
		From:        "s@b.c",
		TicketUUID:  "u",
		Title:       "t",
		Description: long,
		BoardName:   "Board",
	}, "http://x"))

	if strings.Contains(msg, long) {
		t.Error("full description embedded, want truncated preview")
	}
	if !strings.Contains(msg, strings.Repeat("x", descriptionPreviewLimit)+"...") {
		t.Error("preview not truncated with ellipsis")
	}
}

func TestRenderMessageUsesCRLF(t *testing.T) {
	msg := string(renderMessage("a@b.c", "d@e.f", "subj", "line1\nline2"))

	if !strings.HasPrefix(msg, "From: a@b.c\r\n") {
		t.Errorf("message does not start with From header: %q", msg)
	}
	if !strings.Contains(msg, "line1\r\nline2") {
		t.Errorf("body newlines not normalized to CRLF: %q", msg)
	}
	if strings.Contains(strings.ReplaceAll(msg, "\r\n", ""), "\n") {
		t.Errorf("stray bare LF in message: %q", msg)
	}
}
