package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listinginbox/backend/internal/model"
	"github.com/listinginbox/backend/internal/service"
	"github.com/listinginbox/backend/pkg/auth"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockMessageService struct {
	sendContactFunc   func(ctx context.Context, listingID, recipientID, senderID string, in service.ContactInput) (*model.Message, error)
	replyFunc         func(ctx context.Context, originalID string, in service.ReplyInput, senderID string) (*model.Message, error)
	getMessageFunc    func(ctx context.Context, id string) (*model.Message, error)
	listFunc          func(ctx context.Context, userID string) ([]*model.Message, error)
	conversationsFunc func(ctx context.Context, userID string) (*model.Conversations, error)
	threadFunc        func(ctx context.Context, threadKey, userID string) ([]*model.Message, error)
	unreadCountFunc   func(ctx context.Context, userID string) (int, error)
	deleteFunc        func(ctx context.Context, id string, cascade bool) error

	applied []string
}

var _ service.MessageService = (*mockMessageService)(nil)

func (m *mockMessageService) SendContactMessage(ctx context.Context, listingID, recipientID, senderID string, in service.ContactInput) (*model.Message, error) {
	return m.sendContactFunc(ctx, listingID, recipientID, senderID, in)
}
func (m *mockMessageService) ReplyToMessage(ctx context.Context, originalID string, in service.ReplyInput, senderID string) (*model.Message, error) {
	return m.replyFunc(ctx, originalID, in, senderID)
}
func (m *mockMessageService) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	return m.getMessageFunc(ctx, id)
}
func (m *mockMessageService) GetSentMessages(ctx context.Context, userID string) ([]*model.Message, error) {
	return m.listFunc(ctx, "sent:"+userID)
}
func (m *mockMessageService) GetReceivedMessages(ctx context.Context, userID string) ([]*model.Message, error) {
	return m.listFunc(ctx, "received:"+userID)
}
func (m *mockMessageService) GetArchivedMessages(ctx context.Context, userID string) ([]*model.Message, error) {
	return m.listFunc(ctx, "archived:"+userID)
}
func (m *mockMessageService) GetConversations(ctx context.Context, userID string) (*model.Conversations, error) {
	return m.conversationsFunc(ctx, userID)
}
func (m *mockMessageService) GetMessageThread(ctx context.Context, threadKey, userID string) ([]*model.Message, error) {
	return m.threadFunc(ctx, threadKey, userID)
}
func (m *mockMessageService) MarkAsRead(ctx context.Context, id string) error {
	m.applied = append(m.applied, "read:"+id)
	return nil
}
func (m *mockMessageService) MarkAsUnread(ctx context.Context, id string) error {
	m.applied = append(m.applied, "unread:"+id)
	return nil
}
func (m *mockMessageService) GetUnreadMessageCount(ctx context.Context, userID string) (int, error) {
	return m.unreadCountFunc(ctx, userID)
}
func (m *mockMessageService) ArchiveMessage(ctx context.Context, id string) error {
	m.applied = append(m.applied, "archive:"+id)
	return nil
}
func (m *mockMessageService) UnarchiveMessage(ctx context.Context, id string) error {
	m.applied = append(m.applied, "unarchive:"+id)
	return nil
}
func (m *mockMessageService) DeleteMessage(ctx context.Context, id string, cascade bool) error {
	return m.deleteFunc(ctx, id, cascade)
}

type mockListings struct {
	summaries map[string]*model.ListingSummary
	err       error
}

func (m *mockListings) FindSummaries(ctx context.Context, ids []string) ([]*model.ListingSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*model.ListingSummary
	for _, id := range ids {
		if s, ok := m.summaries[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockListings) IncrementContactCount(ctx context.Context, listingID string) error { return nil }

func asUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// ---------------------------------------------------------------------------
// POST /api/listings/{id}/contact
// ---------------------------------------------------------------------------

func TestMessageHandler_Contact(t *testing.T) {
	var gotRecipient, gotSender string
	var gotInput service.ContactInput
	svc := &mockMessageService{
		sendContactFunc: func(_ context.Context, listingID, recipientID, senderID string, in service.ContactInput) (*model.Message, error) {
			gotRecipient, gotSender, gotInput = recipientID, senderID, in
			return &model.Message{ID: "m1", ListingID: listingID, SenderID: senderID, RecipientID: recipientID}, nil
		},
	}
	listings := &mockListings{summaries: map[string]*model.ListingSummary{"l1": {ID: "l1", SellerID: "seller"}}}
	h := NewMessageHandler(svc, listings)

	req := httptest.NewRequest(http.MethodPost, "/api/listings/l1/contact",
		strings.NewReader(`{"subject":"Bike","body":"Is it still available?","include_phone":true}`))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.Contact(rec, asUser(req, "buyer"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "seller", gotRecipient)
	assert.Equal(t, "buyer", gotSender)
	assert.Equal(t, service.ContactInput{Subject: "Bike", Body: "Is it still available?", IncludePhone: true}, gotInput)
	assert.Equal(t, "m1", decodeBody(t, rec)["id"])
}

func TestMessageHandler_Contact_Errors(t *testing.T) {
	tests := []struct {
		name     string
		listings *mockListings
		sendErr  error
		body     string
		userID   string
		wantCode int
		wantErr  string
	}{
		{"unauthenticated", &mockListings{}, nil, `{}`, "", http.StatusUnauthorized, "unauthorized"},
		{"invalid json", &mockListings{}, nil, `{`, "buyer", http.StatusBadRequest, "invalid_json"},
		{"unknown field", &mockListings{}, nil, `{"to":"x"}`, "buyer", http.StatusBadRequest, "invalid_json"},
		{"listing missing", &mockListings{}, nil, `{"subject":"s","body":"long enough body"}`, "buyer", http.StatusNotFound, "listing_not_found"},
		{"listing lookup fails", &mockListings{err: errors.New("boom")}, nil, `{"subject":"s","body":"long enough body"}`, "buyer", http.StatusInternalServerError, "find_listing_failed"},
		{"validation", nil, fmt.Errorf("%w: body too short", service.ErrValidation), `{"subject":"s","body":"short"}`, "buyer", http.StatusBadRequest, "validation_failed"},
		{"transient", nil, fmt.Errorf("%w: create", service.ErrTransient), `{"subject":"s","body":"long enough body"}`, "buyer", http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listings := tt.listings
			if listings == nil {
				listings = &mockListings{summaries: map[string]*model.ListingSummary{"l1": {ID: "l1", SellerID: "seller"}}}
			}
			svc := &mockMessageService{
				sendContactFunc: func(context.Context, string, string, string, service.ContactInput) (*model.Message, error) {
					return nil, tt.sendErr
				},
			}
			h := NewMessageHandler(svc, listings)
			req := httptest.NewRequest(http.MethodPost, "/api/listings/l1/contact", strings.NewReader(tt.body))
			req.SetPathValue("id", "l1")
			if tt.userID != "" {
				req = asUser(req, tt.userID)
			}
			rec := httptest.NewRecorder()
			h.Contact(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, decodeBody(t, rec)["error"])
		})
	}
}

func TestMessageHandler_Contact_ValidationDetail(t *testing.T) {
	svc := &mockMessageService{
		sendContactFunc: func(context.Context, string, string, string, service.ContactInput) (*model.Message, error) {
			return nil, fmt.Errorf("%w: body must be at least 10 characters", service.ErrValidation)
		},
	}
	h := NewMessageHandler(svc, &mockListings{summaries: map[string]*model.ListingSummary{"l1": {ID: "l1", SellerID: "s"}}})
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"subject":"s","body":"x"}`))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.Contact(rec, asUser(req, "buyer"))

	assert.Equal(t, "body must be at least 10 characters", decodeBody(t, rec)["detail"])
}

func TestMessageHandler_Contact_BodyTooLarge(t *testing.T) {
	h := NewMessageHandler(&mockMessageService{}, &mockListings{})
	big := `{"subject":"s","body":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	req.SetPathValue("id", "l1")
	rec := httptest.NewRecorder()
	h.Contact(rec, asUser(req, "buyer"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ---------------------------------------------------------------------------
// POST /api/messages/{id}/reply
// ---------------------------------------------------------------------------

func TestMessageHandler_Reply(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"created", nil, http.StatusCreated},
		{"not participant", service.ErrPermissionDenied, http.StatusForbidden},
		{"original missing", fmt.Errorf("%w: m9", service.ErrNotFound), http.StatusNotFound},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockMessageService{
				replyFunc: func(_ context.Context, originalID string, in service.ReplyInput, senderID string) (*model.Message, error) {
					assert.Equal(t, "m1", originalID)
					assert.Equal(t, "Thanks, I will take it.", in.Body)
					assert.Equal(t, "seller", senderID)
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Message{ID: "m2"}, nil
				},
			}
			h := NewMessageHandler(svc, &mockListings{})
			req := httptest.NewRequest(http.MethodPost, "/api/messages/m1/reply", strings.NewReader(`{"body":"Thanks, I will take it."}`))
			req.SetPathValue("id", "m1")
			rec := httptest.NewRecorder()
			h.Reply(rec, asUser(req, "seller"))

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

// ---------------------------------------------------------------------------
// Mailbox lists, unread count, conversations, thread
// ---------------------------------------------------------------------------

func TestMessageHandler_Lists(t *testing.T) {
	var asked []string
	svc := &mockMessageService{
		listFunc: func(_ context.Context, key string) ([]*model.Message, error) {
			asked = append(asked, key)
			return []*model.Message{}, nil
		},
	}
	h := NewMessageHandler(svc, &mockListings{})

	for _, fn := range []http.HandlerFunc{h.Sent, h.Received, h.Archived} {
		rec := httptest.NewRecorder()
		fn(rec, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
	}
	assert.Equal(t, []string{"sent:u1", "received:u1", "archived:u1"}, asked)
}

func TestMessageHandler_UnreadCount(t *testing.T) {
	svc := &mockMessageService{
		unreadCountFunc: func(_ context.Context, userID string) (int, error) { return 3, nil },
	}
	h := NewMessageHandler(svc, &mockListings{})
	rec := httptest.NewRecorder()
	h.UnreadCount(rec, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread_count":3}`, rec.Body.String())
}

func TestMessageHandler_Conversations(t *testing.T) {
	svc := &mockMessageService{
		conversationsFunc: func(_ context.Context, userID string) (*model.Conversations, error) {
			return &model.Conversations{
				Threads:     map[string][]*model.Message{"m1": {{ID: "m1"}, {ID: "m2"}}},
				UnreadCount: 1,
			}, nil
		},
	}
	h := NewMessageHandler(svc, &mockListings{})
	rec := httptest.NewRecorder()
	h.Conversations(rec, asUser(httptest.NewRequest(http.MethodGet, "/", nil), "u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["unread_count"])
	threads := body["conversations"].(map[string]any)
	assert.Len(t, threads["m1"], 2)
}

func TestMessageHandler_Thread(t *testing.T) {
	svc := &mockMessageService{
		threadFunc: func(_ context.Context, key, userID string) ([]*model.Message, error) {
			if userID != "buyer" {
				return nil, service.ErrPermissionDenied
			}
			return []*model.Message{{ID: key}}, nil
		},
	}
	h := NewMessageHandler(svc, &mockListings{})

	req := httptest.NewRequest(http.MethodGet, "/api/threads/m1", nil)
	req.SetPathValue("key", "m1")
	rec := httptest.NewRecorder()
	h.Thread(rec, asUser(req, "buyer"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m1", decodeBody(t, rec)["thread_key"])

	rec = httptest.NewRecorder()
	h.Thread(rec, asUser(req, "stranger"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// ---------------------------------------------------------------------------
// Recipient-only state changes
// ---------------------------------------------------------------------------

func TestMessageHandler_RecipientActions(t *testing.T) {
	msg := &model.Message{ID: "m1", SenderID: "buyer", RecipientID: "seller"}
	svc := &mockMessageService{
		getMessageFunc: func(_ context.Context, id string) (*model.Message, error) { return msg, nil },
	}
	h := NewMessageHandler(svc, &mockListings{})

	for _, fn := range []http.HandlerFunc{h.MarkRead, h.MarkUnread, h.Archive, h.Unarchive} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.SetPathValue("id", "m1")

		rec := httptest.NewRecorder()
		fn(rec, asUser(req, "buyer"))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = httptest.NewRecorder()
		fn(rec, asUser(req, "seller"))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, []string{"read:m1", "unread:m1", "archive:m1", "unarchive:m1"}, svc.applied)
}

func TestMessageHandler_RecipientAction_NotFound(t *testing.T) {
	svc := &mockMessageService{
		getMessageFunc: func(context.Context, string) (*model.Message, error) {
			return nil, fmt.Errorf("%w: m1", service.ErrNotFound)
		},
	}
	h := NewMessageHandler(svc, &mockListings{})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.SetPathValue("id", "m1")
	rec := httptest.NewRecorder()
	h.MarkRead(rec, asUser(req, "seller"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, svc.applied)
}

// ---------------------------------------------------------------------------
// DELETE /api/messages/{id}
// ---------------------------------------------------------------------------

func TestMessageHandler_Delete(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		userID      string
		deleteErr   error
		wantCode    int
		wantCascade bool
		wantCalled  bool
	}{
		{"sender", "", "buyer", nil, http.StatusNoContent, false, true},
		{"recipient cascades", "?cascade=true", "seller", nil, http.StatusNoContent, true, true},
		{"explicit false", "?cascade=0", "seller", nil, http.StatusNoContent, false, true},
		{"bad cascade", "?cascade=maybe", "seller", nil, http.StatusBadRequest, false, false},
		{"stranger", "", "stranger", nil, http.StatusForbidden, false, false},
		{"concurrent delete", "", "buyer", service.ErrNotFound, http.StatusNoContent, false, true},
		{"store down", "", "buyer", service.ErrTransient, http.StatusServiceUnavailable, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called, cascade := false, false
			svc := &mockMessageService{
				getMessageFunc: func(context.Context, string) (*model.Message, error) {
					return &model.Message{ID: "m1", SenderID: "buyer", RecipientID: "seller"}, nil
				},
				deleteFunc: func(_ context.Context, id string, c bool) error {
					called, cascade = true, c
					return tt.deleteErr
				},
			}
			h := NewMessageHandler(svc, &mockListings{})
			req := httptest.NewRequest(http.MethodDelete, "/api/messages/m1"+tt.query, nil)
			req.SetPathValue("id", "m1")
			rec := httptest.NewRecorder()
			h.Delete(rec, asUser(req, tt.userID))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
			assert.Equal(t, tt.wantCascade, cascade)
		})
	}
}
