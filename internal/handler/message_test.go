package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/messaging/internal/identity"
	"github.com/casedesk/messaging/internal/middleware"
	"github.com/casedesk/messaging/internal/model"
	"github.com/casedesk/messaging/internal/repository"
	"github.com/casedesk/messaging/internal/service"
)

// memStore is just enough of a message store to drive the handlers.
type memStore struct {
	messages []*model.Message
	failErr  error
}

func (s *memStore) Create(_ context.Context, m *model.Message) error {
	if s.failErr != nil {
		return s.failErr
	}
	m.Seq = int64(len(s.messages) + 1)
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Message, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	for _, m := range s.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) ListConversation(_ context.Context, a, b string) ([]model.Message, error) {
	if s.failErr != nil {
		return nil, s.failErr
	}
	var out []model.Message
	for _, m := range s.messages {
		if (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) ListForParty(_ context.Context, party string) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.SenderID == party || m.ReceiverID == party {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) MarkDelivered(_ context.Context, sender, receiver string) (int64, error) {
	var n int64
	for _, m := range s.messages {
		if m.SenderID == sender && m.ReceiverID == receiver && m.Status == model.MessageStatusSent {
			m.Status = model.MessageStatusDelivered
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkRead(_ context.Context, sender, receiver string) (int64, error) {
	var n int64
	for _, m := range s.messages {
		if m.SenderID == sender && m.ReceiverID == receiver && m.Status != model.MessageStatusRead {
			m.Status = model.MessageStatusRead
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkReadByIDs(_ context.Context, receiver string, ids []string) (int64, error) {
	return 0, nil
}

func (s *memStore) SoftDelete(_ context.Context, id string, deletedAt time.Time) (*model.Message, error) {
	for _, m := range s.messages {
		if m.ID == id {
			m.IsDeleted = true
			m.Body = model.Tombstone
			at := deletedAt
			m.DeletedAt = &at
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memStore) UnreadCount(_ context.Context, party string) (int, error) {
	count := 0
	for _, m := range s.messages {
		if m.ReceiverID == party && m.Status != model.MessageStatusRead && !m.IsDeleted {
			count++
		}
	}
	return count, nil
}

type memReacts struct{}

func (memReacts) Toggle(context.Context, string, string, string) (bool, error) { return true, nil }
func (memReacts) ListByMessage(context.Context, string) ([]model.Reaction, error) {
	return nil, nil
}
func (memReacts) ListByMessages(context.Context, []string) (map[string][]model.Reaction, error) {
	return map[string][]model.Reaction{}, nil
}

type silentPublisher struct{}

func (silentPublisher) Publish(string, string, any) int { return 0 }

type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, partyID string) (*model.PartyProfile, error) {
	return &model.PartyProfile{ID: partyID, DisplayName: partyID}, nil
}

var _ identity.Resolver = staticResolver{}

func newTestRouter(store *memStore) http.Handler {
	svc := service.New(store, memReacts{}, staticResolver{}, silentPublisher{}, nil)
	h := NewMessageHandler(svc)
	r := chi.NewRouter()
	r.Post("/api/messages", h.Send)
	r.Post("/api/messages/read", h.MarkMessagesRead)
	r.Delete("/api/messages/{messageId}", h.Delete)
	r.Post("/api/messages/{messageId}/reactions", h.ToggleReaction)
	r.Get("/api/conversations/{partyId}", h.Conversation)
	r.Post("/api/conversations/{partyId}/read", h.MarkConversationRead)
	r.Get("/api/inbox", h.Inbox)
	r.Get("/api/unread", h.UnreadCount)
	return r
}

func doRequest(t *testing.T, router http.Handler, party, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req = req.WithContext(middleware.WithPartyID(req.Context(), party))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSendEndpoint(t *testing.T) {
	store := &memStore{}
	router := newTestRouter(store)

	rec := doRequest(t, router, "alice", http.MethodPost, "/api/messages",
		map[string]any{"receiver_id": "bob", "body": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var m model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "alice", m.SenderID)
	assert.Equal(t, "bob", m.ReceiverID)
	assert.Equal(t, model.MessageStatusSent, m.Status)
}

func TestSendEndpointBadRequests(t *testing.T) {
	router := newTestRouter(&memStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString("{not json"))
	req = req.WithContext(middleware.WithPartyID(req.Context(), "alice"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, "alice", http.MethodPost, "/api/messages",
		map[string]any{"receiver_id": "", "body": "hello"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "receiver required")
}

func TestDeleteEndpoint(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Create(context.Background(), &model.Message{
		ID: "m1", SenderID: "alice", ReceiverID: "bob", Body: "secret",
		Status: model.MessageStatusSent, CreatedAt: time.Now().UTC(),
	}))
	router := newTestRouter(store)

	rec := doRequest(t, router, "bob", http.MethodDelete, "/api/messages/m1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, router, "alice", http.MethodDelete, "/api/messages/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "message not found")

	rec = doRequest(t, router, "alice", http.MethodDelete, "/api/messages/m1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.True(t, m.IsDeleted)
	assert.Equal(t, model.Tombstone, m.Body)
}

func TestConversationEndpoint(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Create(context.Background(), &model.Message{
		ID: "m1", SenderID: "bob", ReceiverID: "alice", Body: "hi",
		Status: model.MessageStatusSent, CreatedAt: time.Now().UTC(),
	}))
	router := newTestRouter(store)

	rec := doRequest(t, router, "alice", http.MethodGet, "/api/conversations/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, model.MessageStatusDelivered, list[0].Status, "fetching delivers")
}

func TestUnreadEndpoint(t *testing.T) {
	store := &memStore{}
	require.NoError(t, store.Create(context.Background(), &model.Message{
		ID: "m1", SenderID: "bob", ReceiverID: "alice", Body: "hi",
		Status: model.MessageStatusSent, CreatedAt: time.Now().UTC(),
	}))
	router := newTestRouter(store)

	rec := doRequest(t, router, "alice", http.MethodGet, "/api/unread", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":1}`, rec.Body.String())
}

func TestStorageErrorStaysGeneric(t *testing.T) {
	store := &memStore{failErr: errors.New("connection refused to db-host:5432")}
	router := newTestRouter(store)

	rec := doRequest(t, router, "alice", http.MethodPost, "/api/messages",
		map[string]any{"receiver_id": "bob", "body": "hello"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "storage error")
	assert.NotContains(t, rec.Body.String(), "db-host", "internal details never leak")
}
