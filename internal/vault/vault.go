// Package vault implements the encrypted, file-backed secret store.
// Secrets are encrypted under a single master key and persisted as one JSON
// document written atomically after every mutation.
package vault

import (
	"strconv"
	"time"
)

// SchemaVersion is the on-disk vault format version.
const SchemaVersion = 1

// Vault is the root persisted object: schema version, timestamps, rotation
// defaults, and the mapping from secret name to encrypted record.
type Vault struct {
	Version      int                     `json:"version"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
	RotationDays int                     `json:"rotation_days"`
	GraceDays    int                     `json:"grace_days"`
	Secrets      map[string]SecretRecord `json:"secrets"`
}

// SecretRecord holds the AEAD-encrypted blob (nonce and ciphertext bound to
// one master key) and its metadata. Records are owned exclusively by the
// vault and never exposed whole to callers.
type SecretRecord struct {
	Blob string     `json:"blob"`
	Meta SecretMeta `json:"meta"`
}

// SecretMeta describes one version of a secret: the cipher it was sealed
// with, its key id, creation and expiry times, and the key ids of previous
// versions still inside the grace period.
type SecretMeta struct {
	Algorithm string     `json:"algorithm"`
	Kid       string     `json:"kid"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Prev      []string   `json:"prev"`
}

// SecretInfo pairs a secret name with its metadata for listing.
// It never carries plaintext.
type SecretInfo struct {
	Name string     `json:"name"`
	Meta SecretMeta `json:"meta"`
}

// Stats summarizes the vault for health reporting.
type Stats struct {
	Total        int       `json:"total"`
	ExpiredCount int       `json:"expired_count"`
	RotationDays int       `json:"rotation_days"`
	GraceDays    int       `json:"grace_days"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewKid derives a key id from a timestamp. Kids are unique per version of a
// secret and change on every rotation.
func NewKid(now time.Time) string {
	return "v" + strconv.FormatInt(now.UnixNano(), 10)
}

// KidTime recovers the creation time encoded in a kid.
// Returns false if the kid is not in the timestamp-derived format.
func KidTime(kid string) (time.Time, bool) {
	if len(kid) < 2 || kid[0] != 'v' {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(kid[1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}

// PrunePrev drops previous kids whose rotation time is older than the grace
// period. Kids that don't encode a timestamp are kept; dropping them could
// invalidate material a dependent is still verifying against.
func PrunePrev(prev []string, now time.Time, graceDays int) []string {
	if len(prev) == 0 {
		return prev
	}

	cutoff := now.AddDate(0, 0, -graceDays)
	kept := make([]string, 0, len(prev))
	for _, kid := range prev {
		if t, ok := KidTime(kid); ok && t.Before(cutoff) {
			continue
		}
		kept = append(kept, kid)
	}
	return kept
}
