package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"
)

type fakeRecords struct {
	exists    bool
	err       error
	lastInbox int64
	lastSender string
	lastHash  string
	lastSince time.Time
}

func (f *fakeRecords) ExistsRecent(_ context.Context, inboxID int64, sender, subjectHash string, since time.Time) (bool, error) {
	f.lastInbox = inboxID
	f.lastSender = sender
	f.lastHash = subjectHash
	f.lastSince = since
	return f.exists, f.err
}

func TestFingerprintIsStableHex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		subject := rapid.String().Draw(t, "subject")

		a := Fingerprint(subject)
		b := Fingerprint(subject)
		if a != b {
			t.Fatalf("Fingerprint not deterministic: %q vs %q", a, b)
		}
		if len(a) != 64 {
			t.Fatalf("Fingerprint length = %d, want 64", len(a))
		}
		for _, r := range a {
			if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
				t.Fatalf("Fingerprint contains non-hex rune %q", r)
			}
		}
	})
}

func TestFingerprintDistinguishesSubjects(t *testing.T) {
	if Fingerprint("invoice overdue") == Fingerprint("invoice paid") {
		t.Error("distinct subjects produced the same fingerprint")
	}
}

func TestIsDuplicateQueriesWindowCutoff(t *testing.T) {
	records := &fakeRecords{exists: true}
	d := NewDetector(records, 30*time.Minute)

	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	dup, err := d.IsDuplicate(context.Background(), 7, "alice@example.com", "Printer on fire")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("IsDuplicate = false, want true")
	}

	wantSince := fixed.Add(-30 * time.Minute)
	if !records.lastSince.Equal(wantSince) {
		t.Errorf("cutoff = %v, want %v", records.lastSince, wantSince)
	}
	if records.lastInbox != 7 {
		t.Errorf("inbox = %d, want 7", records.lastInbox)
	}
	if records.lastSender != "alice@example.com" {
		t.Errorf("sender = %q", records.lastSender)
	}
	if records.lastHash != Fingerprint("Printer on fire") {
		t.Errorf("hash = %q, want subject fingerprint", records.lastHash)
	}
}

func TestIsDuplicatePropagatesLookupError(t *testing.T) {
	records := &fakeRecords{err: errors.New("connection refused")}
	d := NewDetector(records, time.Hour)

	if _, err := d.IsDuplicate(context.Background(), 1, "a@b.c", "x"); err == nil {
		t.Error("IsDuplicate swallowed lookup error")
	}
}

func TestNewDetectorDefaultsWindow(t *testing.T) {
	d := NewDetector(&fakeRecords{}, 0)
	if d.window != DefaultWindow {
		t.Errorf("window = %v, want %v", d.window, DefaultWindow)
	}
	d = NewDetector(&fakeRecords{}, -time.Minute)
	if d.window != DefaultWindow {
		t.Errorf("window = %v, want %v", d.window, DefaultWindow)
	}
}
