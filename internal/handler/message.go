package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casedesk/messaging/internal/middleware"
	"github.com/casedesk/messaging/internal/model"
	"github.com/casedesk/messaging/internal/service"
)

type MessageHandler struct {
	svc *service.Messaging
}

func NewMessageHandler(svc *service.Messaging) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type sendRequest struct {
	ReceiverID  string             `json:"receiver_id"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments,omitempty"`
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	sender := middleware.GetPartyID(r.Context())
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.svc.Send(r.Context(), sender, req.ReceiverID, req.Body, req.Attachments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// Conversation returns the ordered message history with one counterpart.
// Fetching marks the counterpart's pending messages delivered.
func (h *MessageHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	counterpart := chi.URLParam(r, "partyId")
	messages, err := h.svc.Conversation(r.Context(), requester, counterpart)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	views, err := h.svc.Inbox(r.Context(), requester)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *MessageHandler) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	counterpart := chi.URLParam(r, "partyId")
	if err := h.svc.MarkRead(r.Context(), requester, counterpart); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type markReadRequest struct {
	MessageIDs []string `json:"message_ids"`
}

func (h *MessageHandler) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.MarkReadIDs(r.Context(), requester, req.MessageIDs); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	messageID := chi.URLParam(r, "messageId")
	m, err := h.svc.SoftDelete(r.Context(), requester, messageID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (h *MessageHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	messageID := chi.URLParam(r, "messageId")
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.svc.ToggleReaction(r.Context(), requester, messageID, req.Emoji)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	requester := middleware.GetPartyID(r.Context())
	count, err := h.svc.UnreadCount(r.Context(), requester)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}
