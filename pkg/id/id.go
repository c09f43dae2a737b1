// Package id generates the two identity shapes used across the memory engine:
// random UUIDv4s for episodes, clusters, derivatives, groups and sessions, and
// time-sortable ULIDs for history log and profile entries.
package id

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUID returns a random UUIDv4 string.
func NewUUID() string {
	return uuid.NewString()
}

// IsValidUUID reports whether s parses as a UUID.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// ulidMu serializes ULID generation so monotonic entropy never races
// across goroutines within a single process.
var (
	ulidMu     sync.Mutex
	ulidSource = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a monotonic, time-sortable ULID string for the current
// instant.
func NewULID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidSource).String()
}

// IsValidULID reports whether s parses as a ULID.
func IsValidULID(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// ULIDTime extracts the embedded timestamp from a ULID string.
func ULIDTime(s string) (time.Time, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
