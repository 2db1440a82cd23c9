package chat

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new ULID string (26 chars) used for room and message ids.
// ULIDs sort lexicographically by creation time, which the message pagination
// cursor relies on; monotonic entropy keeps ids strictly increasing even
// within the same millisecond.
func NewID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsValidID reports whether s parses as a ULID.
func IsValidID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
