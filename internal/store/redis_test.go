package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/peykchat/peyk/internal/models"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	m := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+m.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestRedisApplyEventsRedelivery(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []models.Event{
		messageEvent("e1", "alice", `{"id":"m1","text":"hi","to":"global"}`),
	}

	result, err := s.ApplyEvents(ctx, events, now)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewMessages != 1 {
		t.Fatalf("expected 1 new message, got %d", result.NewMessages)
	}

	result, err = s.ApplyEvents(ctx, events, now)
	if err != nil {
		t.Fatal(err)
	}
	if result.Duplicates != 1 || result.NewMessages != 0 {
		t.Fatalf("redelivery should be a duplicate, got %+v", result)
	}

	msgs, err := s.QueryConversation(ctx, models.GlobalRoom, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestRedisApplyEventsFailureKeepsEventEligible(t *testing.T) {
	m := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+m.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	ctx := context.Background()

	events := []models.Event{
		messageEvent("e1", "alice", `{"id":"m1","text":"hi","to":"global"}`),
	}

	m.SetError("backend unavailable")
	if _, err := s.ApplyEvents(ctx, events, time.Now()); err == nil {
		t.Fatal("apply should surface the backend failure")
	}
	m.SetError("")

	// The failed apply must not have consumed the event: it stays
	// unmarked so the next poll's redelivery lands it.
	seen, err := s.IsProcessed(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("e1 must not be marked processed by a failed apply")
	}

	result, err := s.ApplyEvents(ctx, events, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.NewMessages != 1 {
		t.Fatalf("redelivery after failure should apply the message, got %+v", result)
	}

	msgs, err := s.QueryConversation(ctx, models.GlobalRoom, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestRedisApplyEventsAbsorbsPartialApply(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	// The message landed on a previous attempt that died before marking
	// the event. Redelivery re-applies: the insert dedupes on the id and
	// the marker finally sticks.
	msg := testMessage("m1", "alice", models.GlobalRoom, "hi", "2024-01-01T10:00:00")
	if _, err := s.PutMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	events := []models.Event{
		messageEvent("e1", "alice", `{"id":"m1","text":"hi","to":"global"}`),
	}
	result, err := s.ApplyEvents(ctx, events, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.NewMessages != 0 || result.Duplicates != 0 {
		t.Fatalf("replayed message should be absorbed silently, got %+v", result)
	}

	seen, err := s.IsProcessed(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("e1 should be marked processed after the retry")
	}

	msgs, err := s.QueryConversation(ctx, models.GlobalRoom, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
}

func TestRedisPutMessageRepairsIndex(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	// Body present but never indexed, as left by a failure between the
	// two writes. A retry with the same id must make it queryable.
	msg := testMessage("m1", "alice", models.GlobalRoom, "hi", "2024-01-01T10:00:00")
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.client.Set(ctx, messageKey(msg.ID), body, 0).Err(); err != nil {
		t.Fatal(err)
	}

	inserted, err := s.PutMessage(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("body already existed, insert should report a duplicate")
	}

	msgs, err := s.QueryConversation(ctx, models.GlobalRoom, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after index repair, got %d", len(msgs))
	}
}
