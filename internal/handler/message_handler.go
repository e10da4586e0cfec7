package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/repository"
	"github.com/listinginbox/backend/internal/service"
	"github.com/listinginbox/backend/pkg/auth"
)

// MessageHandler exposes the inbox operations over HTTP. Every route requires a session.
type MessageHandler struct {
	svc      service.MessageService
	listings repository.ListingRepository
}

// NewMessageHandler creates a MessageHandler.
func NewMessageHandler(svc service.MessageService, listings repository.ListingRepository) *MessageHandler {
	return &MessageHandler{svc: svc, listings: listings}
}

type contactRequest struct {
	Subject      string `json:"subject"`
	Body         string `json:"body"`
	IncludePhone bool   `json:"include_phone"`
}

type replyRequest struct {
	Body string `json:"body"`
}

type messagesResponse struct {
	Messages []*model.Message `json:"messages"`
}

type threadResponse struct {
	ThreadKey string           `json:"thread_key"`
	Messages  []*model.Message `json:"messages"`
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

// Contact handles POST /api/listings/{id}/contact. The recipient is the listing's seller.
func (h *MessageHandler) Contact(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req contactRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	listingID := r.PathValue("id")
	summaries, err := h.listings.FindSummaries(r.Context(), []string{listingID})
	if err != nil {
		writeServiceError(w, r, err, "find_listing")
		return
	}
	if len(summaries) == 0 {
		writeError(w, http.StatusNotFound, "listing_not_found")
		return
	}

	msg, err := h.svc.SendContactMessage(r.Context(), listingID, summaries[0].SellerID, userID, service.ContactInput{
		Subject:      req.Subject,
		Body:         req.Body,
		IncludePhone: req.IncludePhone,
	})
	if err != nil {
		writeServiceError(w, r, err, "send_message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Reply handles POST /api/messages/{id}/reply.
func (h *MessageHandler) Reply(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req replyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.svc.ReplyToMessage(r.Context(), r.PathValue("id"), service.ReplyInput{Body: req.Body}, userID)
	if err != nil {
		writeServiceError(w, r, err, "reply")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// Sent handles GET /api/me/messages/sent.
func (h *MessageHandler) Sent(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list_sent", h.svc.GetSentMessages)
}

// Received handles GET /api/me/messages/received.
func (h *MessageHandler) Received(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list_received", h.svc.GetReceivedMessages)
}

// Archived handles GET /api/me/messages/archived.
func (h *MessageHandler) Archived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, "list_archived", h.svc.GetArchivedMessages)
}

func (h *MessageHandler) list(w http.ResponseWriter, r *http.Request, op string,
	fetch func(context.Context, string) ([]*model.Message, error)) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	msgs, err := fetch(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, op)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}

// UnreadCount handles GET /api/me/messages/unread-count.
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.svc.GetUnreadMessageCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "unread_count")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": n})
}

// Conversations handles GET /api/me/conversations.
func (h *MessageHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	conv, err := h.svc.GetConversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err, "conversations")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Thread handles GET /api/threads/{key}. Reading a thread marks the caller's unread messages read.
func (h *MessageHandler) Thread(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	msgs, err := h.svc.GetMessageThread(r.Context(), key, userID)
	if err != nil {
		writeServiceError(w, r, err, "thread")
		return
	}
	writeJSON(w, http.StatusOK, threadResponse{ThreadKey: key, Messages: msgs})
}

// MarkRead handles POST /api/messages/{id}/read.
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.recipientAction(w, r, "mark_read", h.svc.MarkAsRead)
}

// MarkUnread handles DELETE /api/messages/{id}/read.
func (h *MessageHandler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	h.recipientAction(w, r, "mark_unread", h.svc.MarkAsUnread)
}

// Archive handles POST /api/messages/{id}/archive.
func (h *MessageHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.recipientAction(w, r, "archive", h.svc.ArchiveMessage)
}

// Unarchive handles DELETE /api/messages/{id}/archive.
func (h *MessageHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.recipientAction(w, r, "unarchive", h.svc.UnarchiveMessage)
}

// recipientAction runs a state change that only the message's recipient may make.
func (h *MessageHandler) recipientAction(w http.ResponseWriter, r *http.Request, op string,
	apply func(context.Context, string) error) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	msg, err := h.svc.GetMessage(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, op)
		return
	}
	if msg.RecipientID != userID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := apply(r.Context(), id); err != nil {
		writeServiceError(w, r, err, op)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /api/messages/{id}. Either participant may delete;
// ?cascade=true removes every reply that depends on the message as well.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	cascade := false
	if v := r.URL.Query().Get("cascade"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_cascade")
			return
		}
		cascade = b
	}

	id := r.PathValue("id")
	msg, err := h.svc.GetMessage(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "delete_message")
		return
	}
	if !msg.HasParticipant(userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.svc.DeleteMessage(r.Context(), id, cascade); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			// raced with another delete
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeServiceError(w, r, err, "delete_message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
