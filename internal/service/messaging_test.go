package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casedesk/messaging/internal/identity"
	"github.com/casedesk/messaging/internal/model"
	"github.com/casedesk/messaging/internal/relay"
	"github.com/casedesk/messaging/internal/repository"
)

// ---- in-memory fakes -------------------------------------------------------

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []*model.Message
	nextSeq  int64
}

func (f *fakeMessageStore) Create(_ context.Context, m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	m.Seq = f.nextSeq
	cp := *m
	f.messages = append(f.messages, &cp)
	return nil
}

func (f *fakeMessageStore) GetByID(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeMessageStore) ListConversation(_ context.Context, partyA, partyB string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if (m.SenderID == partyA && m.ReceiverID == partyB) ||
			(m.SenderID == partyB && m.ReceiverID == partyA) {
			out = append(out, *m)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (f *fakeMessageStore) ListForParty(_ context.Context, party string) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Message
	for _, m := range f.messages {
		if m.SenderID == party || m.ReceiverID == party {
			out = append(out, *m)
		}
	}
	sortByCreation(out)
	return out, nil
}

func sortByCreation(ms []model.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].Seq < ms[j].Seq
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

func (f *fakeMessageStore) MarkDelivered(_ context.Context, sender, receiver string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.SenderID == sender && m.ReceiverID == receiver && m.Status == model.MessageStatusSent {
			m.Status = model.MessageStatusDelivered
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) MarkRead(_ context.Context, sender, receiver string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.messages {
		if m.SenderID == sender && m.ReceiverID == receiver && m.Status != model.MessageStatusRead {
			m.Status = model.MessageStatusRead
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) MarkReadByIDs(_ context.Context, receiver string, ids []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for _, m := range f.messages {
		if want[m.ID] && m.ReceiverID == receiver && m.Status != model.MessageStatusRead {
			m.Status = model.MessageStatusRead
			n++
		}
	}
	return n, nil
}

func (f *fakeMessageStore) SoftDelete(_ context.Context, id string, deletedAt time.Time) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
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

func (f *fakeMessageStore) UnreadCount(_ context.Context, party string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.messages {
		if m.ReceiverID == party && m.Status != model.MessageStatusRead && !m.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) get(id string) *model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ID == id {
			cp := *m
			return &cp
		}
	}
	return nil
}

type fakeReactionStore struct {
	mu        sync.Mutex
	reactions []model.Reaction
}

func (f *fakeReactionStore) Toggle(_ context.Context, messageID, partyID, emoji string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.reactions {
		if r.MessageID == messageID && r.PartyID == partyID && r.Emoji == emoji {
			f.reactions = append(f.reactions[:i], f.reactions[i+1:]...)
			return false, nil
		}
	}
	f.reactions = append(f.reactions, model.Reaction{
		MessageID: messageID, PartyID: partyID, Emoji: emoji, CreatedAt: time.Now(),
	})
	return true, nil
}

func (f *fakeReactionStore) ListByMessage(_ context.Context, messageID string) ([]model.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reaction
	for _, r := range f.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeReactionStore) ListByMessages(ctx context.Context, messageIDs []string) (map[string][]model.Reaction, error) {
	out := make(map[string][]model.Reaction, len(messageIDs))
	for _, id := range messageIDs {
		rs, _ := f.ListByMessage(ctx, id)
		if len(rs) > 0 {
			out[id] = rs
		}
	}
	return out, nil
}

type publishedEvent struct {
	partyID   string
	eventType string
	payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	online map[string]int
	events []publishedEvent
}

func (f *fakePublisher) Publish(partyID string, eventType string, payload any) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{partyID, eventType, payload})
	return f.online[partyID]
}

func (f *fakePublisher) eventsFor(partyID string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.partyID == partyID {
			out = append(out, e)
		}
	}
	return out
}

type fakeResolver map[string]*model.PartyProfile

func (f fakeResolver) Resolve(_ context.Context, partyID string) (*model.PartyProfile, error) {
	if p, ok := f[partyID]; ok {
		return p, nil
	}
	return nil, identity.ErrUnknownParty
}

type notifyCall struct {
	partyID string
	title   string
	body    string
	data    map[string]string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(_ context.Context, partyID, title, body string, data map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{partyID, title, body, data})
}

type testEnv struct {
	svc      *Messaging
	msgs     *fakeMessageStore
	reacts   *fakeReactionStore
	pub      *fakePublisher
	notifier *fakeNotifier
}

func newTestEnv(resolver identity.Resolver) *testEnv {
	if resolver == nil {
		resolver = fakeResolver{
			"alice": {ID: "alice", DisplayName: "Alice"},
			"bob":   {ID: "bob", DisplayName: "Bob"},
		}
	}
	env := &testEnv{
		msgs:     &fakeMessageStore{},
		reacts:   &fakeReactionStore{},
		pub:      &fakePublisher{online: make(map[string]int)},
		notifier: &fakeNotifier{},
	}
	env.svc = New(env.msgs, env.reacts, resolver, env.pub, env.notifier)
	return env
}

// seed inserts a message directly into the fake store, bypassing Send.
func (e *testEnv) seed(t *testing.T, id, sender, receiver, body string, status model.MessageStatus, at time.Time) {
	t.Helper()
	err := e.msgs.Create(context.Background(), &model.Message{
		ID: id, SenderID: sender, ReceiverID: receiver, Body: body,
		Status: status, CreatedAt: at,
	})
	require.NoError(t, err)
}

// ---- Send ------------------------------------------------------------------

func TestSendValidation(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		receiver    string
		body        string
		attachments []model.Attachment
	}{
		{name: "missing receiver", receiver: "", body: "hi"},
		{name: "empty body without attachments", receiver: "bob", body: ""},
		{name: "whitespace body without attachments", receiver: "bob", body: "   \n\t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Send(ctx, "alice", tt.receiver, tt.body, tt.attachments)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSendAttachmentOnly(t *testing.T) {
	env := newTestEnv(nil)
	m, err := env.svc.Send(context.Background(), "alice", "bob", "", []model.Attachment{
		{Kind: model.AttachmentKindImage, URL: "https://files/x.png", FileName: "x.png", FileSize: 1024},
	})
	require.NoError(t, err)
	assert.Empty(t, m.Body)
	assert.Len(t, m.Attachments, 1)
}

func TestSendPersists(t *testing.T) {
	env := newTestEnv(nil)
	m, err := env.svc.Send(context.Background(), "alice", "bob", "hello", nil)
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	assert.Equal(t, model.MessageStatusSent, m.Status)
	assert.Equal(t, time.UTC, m.CreatedAt.Location())

	stored := env.msgs.get(m.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.SenderID)
	assert.Equal(t, "bob", stored.ReceiverID)
	assert.Equal(t, "hello", stored.Body)
	assert.Positive(t, stored.Seq)
}

func TestPushCreatedReachesReceiverRoom(t *testing.T) {
	env := newTestEnv(nil)
	env.pub.online["bob"] = 2

	m := &model.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Body: "hello"}
	env.svc.pushCreated(m)

	events := env.pub.eventsFor("bob")
	require.Len(t, events, 1)
	assert.Equal(t, relay.EventReceiveMessage, events[0].eventType)
	assert.Same(t, m, events[0].payload)
	assert.Empty(t, env.notifier.calls, "online receiver must not get an offline notification")
}

func TestPushCreatedFallsBackWhenOffline(t *testing.T) {
	env := newTestEnv(nil)

	m := &model.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Body: "hello"}
	env.svc.pushCreated(m)

	require.Len(t, env.notifier.calls, 1)
	call := env.notifier.calls[0]
	assert.Equal(t, "bob", call.partyID)
	assert.Equal(t, "Alice", call.title)
	assert.Equal(t, "hello", call.body)
	assert.Equal(t, "m1", call.data["message_id"])
	assert.Equal(t, "alice", call.data["sender_id"])
}

func TestPushCreatedTruncatesNotificationBody(t *testing.T) {
	env := newTestEnv(nil)

	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	env.svc.pushCreated(&model.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Body: string(long)})

	require.Len(t, env.notifier.calls, 1)
	assert.Len(t, env.notifier.calls[0].body, 120)
}

// ---- Conversation ----------------------------------------------------------

func TestConversationMarksDelivered(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.seed(t, "m1", "bob", "alice", "from bob", model.MessageStatusSent, base)
	env.seed(t, "m2", "bob", "alice", "also bob", model.MessageStatusSent, base.Add(time.Minute))
	env.seed(t, "m3", "alice", "bob", "from alice", model.MessageStatusSent, base.Add(2*time.Minute))

	messages, err := env.svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Fetching marks the counterpart's sent messages delivered; the
	// requester's own outgoing message is untouched.
	assert.Equal(t, model.MessageStatusDelivered, env.msgs.get("m1").Status)
	assert.Equal(t, model.MessageStatusDelivered, env.msgs.get("m2").Status)
	assert.Equal(t, model.MessageStatusSent, env.msgs.get("m3").Status)

	events := env.pub.eventsFor("bob")
	require.Len(t, events, 1)
	assert.Equal(t, relay.EventMessagesDelivered, events[0].eventType)
	assert.Equal(t, relay.DeliveredPayload{PartyID: "alice"}, events[0].payload)

	// A second fetch has nothing to transition and stays silent.
	_, err = env.svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Len(t, env.pub.eventsFor("bob"), 1)
}

func TestConversationOrdering(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// m2 and m3 share a timestamp; insertion order breaks the tie.
	env.seed(t, "m1", "alice", "bob", "first", model.MessageStatusRead, base)
	env.seed(t, "m2", "bob", "alice", "second", model.MessageStatusRead, base.Add(time.Minute))
	env.seed(t, "m3", "alice", "bob", "third", model.MessageStatusRead, base.Add(time.Minute))

	messages, err := env.svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
	assert.Equal(t, "m3", messages[2].ID)
}

func TestConversationIncludesDeletedAndReactions(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.seed(t, "m1", "alice", "bob", "hi", model.MessageStatusRead, base)
	env.seed(t, "m2", "bob", "alice", "bye", model.MessageStatusRead, base.Add(time.Minute))

	_, err := env.msgs.SoftDelete(ctx, "m1", base.Add(time.Hour))
	require.NoError(t, err)
	_, err = env.reacts.Toggle(ctx, "m2", "alice", "👍")
	require.NoError(t, err)

	messages, err := env.svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, messages, 2, "a deleted message keeps its place in the conversation")
	assert.True(t, messages[0].IsDeleted)
	assert.Equal(t, model.Tombstone, messages[0].Body)
	require.Len(t, messages[1].Reactions, 1)
	assert.Equal(t, "👍", messages[1].Reactions[0].Emoji)
}

// ---- read transitions ------------------------------------------------------

func TestMarkRead(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.seed(t, "m1", "bob", "alice", "one", model.MessageStatusSent, base)
	env.seed(t, "m2", "bob", "alice", "two", model.MessageStatusDelivered, base.Add(time.Minute))
	env.seed(t, "m3", "alice", "bob", "mine", model.MessageStatusSent, base.Add(2*time.Minute))

	require.NoError(t, env.svc.MarkRead(ctx, "alice", "bob"))

	assert.Equal(t, model.MessageStatusRead, env.msgs.get("m1").Status)
	assert.Equal(t, model.MessageStatusRead, env.msgs.get("m2").Status)
	assert.Equal(t, model.MessageStatusSent, env.msgs.get("m3").Status, "own outgoing messages never transition")

	events := env.pub.eventsFor("bob")
	require.Len(t, events, 1)
	assert.Equal(t, relay.EventMessagesRead, events[0].eventType)

	// Idempotent and silent the second time.
	require.NoError(t, env.svc.MarkRead(ctx, "alice", "bob"))
	assert.Len(t, env.pub.eventsFor("bob"), 1)
}

func TestMarkReadIDs(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.seed(t, "m1", "bob", "alice", "one", model.MessageStatusSent, base)
	env.seed(t, "m2", "carol", "alice", "two", model.MessageStatusDelivered, base.Add(time.Minute))
	env.seed(t, "m3", "bob", "carol", "not alice's", model.MessageStatusSent, base.Add(2*time.Minute))

	err := env.svc.MarkReadIDs(ctx, "alice", nil)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.svc.MarkReadIDs(ctx, "alice", []string{"m1", "m2", "m3", "missing"}))

	assert.Equal(t, model.MessageStatusRead, env.msgs.get("m1").Status)
	assert.Equal(t, model.MessageStatusRead, env.msgs.get("m2").Status)
	assert.Equal(t, model.MessageStatusSent, env.msgs.get("m3").Status, "messages addressed elsewhere are ignored")

	// One read receipt per distinct sender.
	bobEvents := env.pub.eventsFor("bob")
	require.Len(t, bobEvents, 1)
	assert.Equal(t, relay.ReadPayload{PartyID: "alice", MessageIDs: []string{"m1"}}, bobEvents[0].payload)
	carolEvents := env.pub.eventsFor("carol")
	require.Len(t, carolEvents, 1)
	assert.Equal(t, relay.ReadPayload{PartyID: "alice", MessageIDs: []string{"m2"}}, carolEvents[0].payload)
}

func TestStatusNeverRegresses(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.seed(t, "m1", "bob", "alice", "hi", model.MessageStatusRead, time.Now().UTC())

	// A later conversation fetch must not pull a read message back to
	// delivered.
	_, err := env.svc.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusRead, env.msgs.get("m1").Status)
}

// ---- soft delete -----------------------------------------------------------

func TestSoftDelete(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, env.msgs.Create(ctx, &model.Message{
		ID: "m1", SenderID: "alice", ReceiverID: "bob", Body: "secret",
		Attachments: []model.Attachment{{Kind: model.AttachmentKindDocument, URL: "https://files/d.pdf"}},
		Status:      model.MessageStatusDelivered, CreatedAt: base,
	}))

	_, err := env.svc.SoftDelete(ctx, "alice", "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = env.svc.SoftDelete(ctx, "bob", "m1")
	assert.ErrorIs(t, err, ErrForbidden, "only the sender may delete")

	deleted, err := env.svc.SoftDelete(ctx, "alice", "m1")
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, model.Tombstone, deleted.Body)
	require.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, "m1", deleted.ID, "identity survives deletion")
	assert.Len(t, deleted.Attachments, 1, "attachments survive deletion")
	assert.Equal(t, model.MessageStatusDelivered, deleted.Status)

	events := env.pub.eventsFor("bob")
	require.Len(t, events, 1)
	assert.Equal(t, relay.EventMessageDeleted, events[0].eventType)
	assert.Equal(t, relay.MessageDeletedPayload{MessageID: "m1"}, events[0].payload)
}

// ---- reactions -------------------------------------------------------------

func TestToggleReaction(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.seed(t, "m1", "alice", "bob", "hi", model.MessageStatusRead, time.Now().UTC())

	_, err := env.svc.ToggleReaction(ctx, "bob", "m1", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.ToggleReaction(ctx, "bob", "missing", "👍")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = env.svc.ToggleReaction(ctx, "mallory", "m1", "👍")
	assert.ErrorIs(t, err, ErrForbidden)

	m, err := env.svc.ToggleReaction(ctx, "bob", "m1", "👍")
	require.NoError(t, err)
	require.Len(t, m.Reactions, 1)
	assert.Equal(t, "bob", m.Reactions[0].PartyID)

	events := env.pub.eventsFor("alice")
	require.Len(t, events, 1)
	assert.Equal(t, relay.EventReactionUpdated, events[0].eventType)
	assert.Equal(t, relay.ReactionPayload{MessageID: "m1", PartyID: "bob", Emoji: "👍", Added: true}, events[0].payload)

	// Same key again removes it.
	m, err = env.svc.ToggleReaction(ctx, "bob", "m1", "👍")
	require.NoError(t, err)
	assert.Empty(t, m.Reactions)
	events = env.pub.eventsFor("alice")
	require.Len(t, events, 2)
	assert.Equal(t, relay.ReactionPayload{MessageID: "m1", PartyID: "bob", Emoji: "👍", Added: false}, events[1].payload)
}

func TestToggleReactionDistinctKeys(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	env.seed(t, "m1", "alice", "bob", "hi", model.MessageStatusRead, time.Now().UTC())

	// Different emoji and different party are independent keys.
	_, err := env.svc.ToggleReaction(ctx, "bob", "m1", "👍")
	require.NoError(t, err)
	_, err = env.svc.ToggleReaction(ctx, "bob", "m1", "❤️")
	require.NoError(t, err)
	m, err := env.svc.ToggleReaction(ctx, "alice", "m1", "👍")
	require.NoError(t, err)
	assert.Len(t, m.Reactions, 3)
}

// ---- unread ----------------------------------------------------------------

func TestUnreadCount(t *testing.T) {
	env := newTestEnv(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.seed(t, "m1", "bob", "alice", "one", model.MessageStatusSent, base)
	env.seed(t, "m2", "bob", "alice", "two", model.MessageStatusDelivered, base.Add(time.Minute))
	env.seed(t, "m3", "bob", "alice", "three", model.MessageStatusRead, base.Add(2*time.Minute))
	env.seed(t, "m4", "alice", "bob", "mine", model.MessageStatusSent, base.Add(3*time.Minute))
	env.seed(t, "m5", "carol", "alice", "gone", model.MessageStatusSent, base.Add(4*time.Minute))
	_, err := env.msgs.SoftDelete(ctx, "m5", base.Add(time.Hour))
	require.NoError(t, err)

	n, err := env.svc.UnreadCount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "sent and delivered count, read and deleted do not")
}
