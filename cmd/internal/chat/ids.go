package chat

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a ULID string (26 chars). ULIDs are lexicographically
// sortable, which keeps message ids orderable in logs and in the store.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewHandle returns a connection handle. Handles are opaque to clients and
// unrelated to user identity.
func NewHandle(now time.Time) (string, error) {
	return NewULID(now)
}
