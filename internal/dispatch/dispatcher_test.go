package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/feed"
	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "peyk.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSendOptimisticVisibility(t *testing.T) {
	st := newTestStore(t)

	// The feed never answers successfully; the local write must not care.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(feed.NewClient(srv.URL, "test"), st, zerolog.Nop(), 0)
	ctx := context.Background()

	msg, err := d.Send(ctx, models.GlobalRoom, "bob", "hello")
	if err != nil {
		t.Fatal(err)
	}

	// Visible immediately, before any network confirmation
	msgs, err := st.QueryConversation(ctx, models.GlobalRoom, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("sent message not visible: %+v", msgs)
	}

	d.Wait()
}

func TestSendSubmissionShape(t *testing.T) {
	st := newTestStore(t)

	var mu sync.Mutex
	var got models.Submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	d := New(feed.NewClient(srv.URL, "test"), st, zerolog.Nop(), 0)

	msg, err := d.Send(context.Background(), "alice", "bob", "hi alice")
	if err != nil {
		t.Fatal(err)
	}
	d.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got.Username != "bob" || got.Action != "message" {
		t.Fatalf("unexpected submission: %+v", got)
	}
	if got.Data.ID != msg.ID || got.Data.Text != "hi alice" || got.Data.To != "alice" {
		t.Fatalf("unexpected payload: %+v", got.Data)
	}
}

func TestSendEmptyText(t *testing.T) {
	st := newTestStore(t)
	d := New(feed.NewClient("http://127.0.0.1:0", "test"), st, zerolog.Nop(), 0)

	for _, text := range []string{"", "   ", "\t\n"} {
		if _, err := d.Send(context.Background(), models.GlobalRoom, "bob", text); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("expected ErrEmptyText for %q, got %v", text, err)
		}
	}

	msgs, err := st.QueryConversation(context.Background(), models.GlobalRoom, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Fatalf("empty sends must not reach the store: %+v", msgs)
	}
}

func TestSendThenRedelivery(t *testing.T) {
	st := newTestStore(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	d := New(feed.NewClient(srv.URL, "test"), st, zerolog.Nop(), 0)
	ctx := context.Background()

	msg, err := d.Send(ctx, models.GlobalRoom, "bob", "hello")
	if err != nil {
		t.Fatal(err)
	}
	d.Wait()

	// A later poll redelivers the same message id under a server event id.
	payload, _ := json.Marshal(map[string]string{"id": msg.ID, "text": "hello", "to": "global"})
	result, err := st.ApplyEvents(ctx, []models.Event{{
		ID:        "e_echo_1",
		Action:    "message",
		Username:  "bob",
		Timestamp: msg.Timestamp,
		Data:      payload,
	}}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.NewMessages != 0 {
		t.Fatalf("echo must be absorbed by the primary key, got %+v", result)
	}

	msgs, err := st.QueryConversation(ctx, models.GlobalRoom, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one row for %s, got %d", msg.ID, len(msgs))
	}
}
