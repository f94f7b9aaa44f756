package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/peykchat/peyk/internal/store"
	"github.com/peykchat/peyk/internal/view"
)

// Handler contains shared dependencies for all HTTP handlers. The local
// API is a read-only surface for render-layer consumers; self is the
// authenticated session's username.
type Handler struct {
	store store.EventStore
	views *view.Builder
	self  string
}

// NewHandler creates a new Handler for the given session user.
func NewHandler(st store.EventStore, views *view.Builder, self string) *Handler {
	return &Handler{store: st, views: views, self: self}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
