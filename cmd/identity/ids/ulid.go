// Package ids generates and checks account identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewAccountID returns a ULID stamped with now (current time when zero).
// IDs minted within the same millisecond keep their creation order.
func NewAccountID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	mu.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Valid reports whether s is a canonical account ID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
