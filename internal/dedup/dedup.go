// Package dedup decides whether a message has already been processed for an
// inbox within a trailing time window. The fingerprint covers only the
// subject: body-only variation (quoted-reply trailers and the like) is
// tolerated on purpose, trading a small chance of collapsing two genuinely
// distinct same-subject messages for robust redelivery suppression.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hatchdesk/hatchdesk/backend/internal/repository"
)

// DefaultWindow is how far back the detector looks when no window is
// configured.
const DefaultWindow = 60 * time.Minute

// Fingerprint returns the stable content fingerprint of a subject: the
// 64-character hex SHA-256 digest stored in processed_emails.subject_hash.
func Fingerprint(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return hex.EncodeToString(sum[:])
}

// Detector answers duplicate queries against the processed-email records.
// It has no side effects; records are written by the materializer.
type Detector struct {
	records repository.ProcessedEmailRepositoryInterface
	window  time.Duration
	now     func() time.Time
}

// NewDetector creates a Detector with the given trailing window. A
// non-positive window falls back to DefaultWindow.
func NewDetector(records repository.ProcessedEmailRepositoryInterface, window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{
		records: records,
		window:  window,
		now:     time.Now,
	}
}

// IsDuplicate reports whether a processed-email record exists for the same
// (inbox, sender, subject fingerprint) newer than now minus the window.
func (d *Detector) IsDuplicate(ctx context.Context, inboxID int64, sender, subject string) (bool, error) {
	cutoff := d.now().UTC().Add(-d.window)
	return d.records.ExistsRecent(ctx, inboxID, sender, Fingerprint(subject), cutoff)
}
