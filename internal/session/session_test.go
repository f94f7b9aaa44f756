package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/auth"
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

func newTestFeed(t *testing.T, fetched *int) *feed.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetched != nil && r.Method == http.MethodGet {
			*fetched++
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	return feed.NewClient(srv.URL, "test")
}

func TestOpenRejectsBadCredentials(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := auth.SeedAdmin(ctx, st, "admin123"); err != nil {
		t.Fatal(err)
	}

	var fetched int
	_, err := Open(ctx, st, newTestFeed(t, &fetched), zerolog.Nop(), "admin", "wrong", Options{})
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// No session: no poll loop launched, no presence touched
	if fetched != 0 {
		t.Fatal("poll loop must not run after a failed login")
	}
	users, err := st.ListPresence(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 0 {
		t.Fatalf("presence must stay untouched, got %v", users)
	}
}

func TestOpenStartsSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := auth.SeedAdmin(ctx, st, "admin123"); err != nil {
		t.Fatal(err)
	}

	var fetched int
	sess, err := Open(ctx, st, newTestFeed(t, &fetched), zerolog.Nop(), "admin", "admin123", Options{
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Admin {
		t.Fatal("admin flag should be set")
	}

	// Login sets the session user's presence record
	users, err := st.ListPresence(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0] != "admin" {
		t.Fatalf("expected admin presence, got %v", users)
	}

	sess.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	sess.Close()

	if fetched == 0 {
		t.Fatal("poll loop never reached the feed")
	}
}

func TestSessionSendAndView(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := auth.SeedAdmin(ctx, st, "admin123"); err != nil {
		t.Fatal(err)
	}

	sess, err := Open(ctx, st, newTestFeed(t, nil), zerolog.Nop(), "admin", "admin123", Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	msg, err := sess.Send(ctx, models.GlobalRoom, "hello world")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Sender != "admin" {
		t.Fatalf("sender should be the session user, got %q", msg.Sender)
	}

	msgs, err := sess.Conversation(ctx, models.GlobalRoom)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("optimistic send not visible: %+v", msgs)
	}
}
