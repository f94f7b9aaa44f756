package store

import (
	"context"
	"time"

	"github.com/peykchat/peyk/internal/metrics"
	"github.com/peykchat/peyk/internal/models"
)

// EventStore is the persisted message log, processed-event set, presence
// table and account table behind the sync engine. SQLiteStore, PostgresStore
// and RedisStore implement this interface.
//
// All mutating operations are atomic with respect to concurrent callers:
// the sync loop and the dispatcher may write at the same time.
type EventStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message log
	PutMessage(ctx context.Context, msg *models.Message) (bool, error)
	QueryConversation(ctx context.Context, conversationID, self string) ([]models.Message, error)

	// Processed-event set
	MarkProcessed(ctx context.Context, eventID string) error
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	PruneProcessed(ctx context.Context, olderThan time.Time) (int64, error)

	// ApplyEvents applies one fetch cycle: per event, skip if already
	// processed, insert the message for recognized message events, touch
	// the author's presence, and mark the event processed. Events with
	// unrecognized actions or malformed payloads are still marked
	// processed so the feed never redelivers them.
	ApplyEvents(ctx context.Context, events []models.Event, now time.Time) (ApplyResult, error)

	// Presence
	TouchPresence(ctx context.Context, username string, lastSeen time.Time) error
	ListPresence(ctx context.Context, exclude string) ([]string, error)

	// Accounts (external collaborator; the engine only reads them)
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	CreateAccount(ctx context.Context, username, passwordHash string, admin bool) error
}

// ApplyResult summarizes one applied fetch cycle.
type ApplyResult struct {
	NewMessages int // events that produced a new message row
	Duplicates  int // events already in the processed set
	Ignored     int // consumed without a message: unknown action or malformed payload
}

// observe returns a done func recording operation latency.
func observe(op string) func() {
	start := time.Now()
	return func() {
		metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
