package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/peykchat/peyk/internal/models"
)

// ConversationResponse is the response for a conversation view.
type ConversationResponse struct {
	Conversation string           `json:"conversation"`
	Messages     []models.Message `json:"messages"`
	Total        int              `json:"total"`
}

// Conversation handles GET /conversations/{id}/messages. The id is the
// global-room sentinel or a peer username.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.Error(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	msgs, err := h.views.Conversation(r.Context(), id, h.self)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "conversation query failed")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ConversationResponse{
		Conversation: id,
		Messages:     msgs,
		Total:        len(msgs),
	})
}

// ContactsResponse is the response for the contact list.
type ContactsResponse struct {
	Contacts []string `json:"contacts"`
	Total    int      `json:"total"`
}

// Contacts handles GET /contacts. Usernames are ordered most recently
// seen first; the session user is excluded.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	users, err := h.views.Contacts(r.Context(), h.self)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "contact query failed")
		return
	}
	if users == nil {
		users = []string{}
	}

	h.JSON(w, http.StatusOK, ContactsResponse{Contacts: users, Total: len(users)})
}
