package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/store"
	"github.com/peykchat/peyk/internal/view"
)

func newTestRouter(t *testing.T) (http.Handler, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "peyk.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)
	return NewRouter(zerolog.Nop(), st, view.NewBuilder(st), "admin"), st
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", resp.Status)
	}
}

func TestConversationEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()

	msgs := []*models.Message{
		{ID: "m1", Sender: "alice", Recipient: models.GlobalRoom, Text: "hi", Timestamp: "2024-01-01T10:00:00"},
		{ID: "m2", Sender: "admin", Recipient: "alice", Text: "dm", Timestamp: "2024-01-01T10:00:01"},
	}
	for _, msg := range msgs {
		if _, err := st.PutMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/global/messages", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Conversation string           `json:"conversation"`
		Messages     []models.Message `json:"messages"`
		Total        int              `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Messages[0].ID != "m1" {
		t.Fatalf("unexpected conversation view: %+v", resp)
	}

	// Direct conversation resolves against the session user
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/alice/messages", nil))

	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Messages[0].ID != "m2" {
		t.Fatalf("unexpected direct view: %+v", resp)
	}
}

func TestContactsEndpoint(t *testing.T) {
	r, st := newTestRouter(t)
	ctx := context.Background()

	now := time.Now()
	if err := st.TouchPresence(ctx, "alice", now); err != nil {
		t.Fatal(err)
	}
	if err := st.TouchPresence(ctx, "admin", now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/contacts", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Contacts []string `json:"contacts"`
		Total    int      `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Contacts[0] != "alice" {
		t.Fatalf("session user must be excluded: %+v", resp)
	}
}
