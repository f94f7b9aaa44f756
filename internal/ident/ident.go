// Package ident generates the identifiers the client mints itself:
// message ids and the per-process instance id.
package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a time-ordered message id. Monotonic entropy keeps
// ids from the same process strictly increasing even within one millisecond.
func NewMessageID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewClientID returns a UUIDv7 identifying this client instance for the
// lifetime of the process.
func NewClientID() string {
	return uuid.Must(uuid.NewV7()).String()
}
