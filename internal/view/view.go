// Package view derives render-ready sequences from store state. Builders
// hold no cache: every call reflects all writes visible at call time.
package view

import (
	"context"

	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/store"
)

// Builder is a pure read layer over the event store.
type Builder struct {
	store store.EventStore
}

// NewBuilder creates a view builder.
func NewBuilder(st store.EventStore) *Builder {
	return &Builder{store: st}
}

// Conversation returns the ordered message sequence for a conversation:
// the global room, or the direct pairing between self and the peer named
// by conversationID.
func (b *Builder) Conversation(ctx context.Context, conversationID, self string) ([]models.Message, error) {
	return b.store.QueryConversation(ctx, conversationID, self)
}

// Contacts returns known correspondents other than self, most recently
// seen first.
func (b *Builder) Contacts(ctx context.Context, self string) ([]string, error) {
	return b.store.ListPresence(ctx, self)
}
