// Package service implements the message lifecycle engine: creation,
// conversation fetches with their delivered side effect, read transitions,
// reactions, soft deletion and the per-party inbox view.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casedesk/messaging/internal/identity"
	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/metrics"
	"github.com/casedesk/messaging/internal/model"
	"github.com/casedesk/messaging/internal/relay"
)

// MessageStore is the durable message record. *repository.MessageRepository
// implements it.
type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListConversation(ctx context.Context, partyA, partyB string) ([]model.Message, error)
	ListForParty(ctx context.Context, party string) ([]model.Message, error)
	MarkDelivered(ctx context.Context, sender, receiver string) (int64, error)
	MarkRead(ctx context.Context, sender, receiver string) (int64, error)
	MarkReadByIDs(ctx context.Context, receiver string, ids []string) (int64, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) (*model.Message, error)
	UnreadCount(ctx context.Context, party string) (int, error)
}

// ReactionStore is the keyed reaction sub-store. *repository.ReactionRepository
// implements it.
type ReactionStore interface {
	Toggle(ctx context.Context, messageID, partyID, emoji string) (bool, error)
	ListByMessage(ctx context.Context, messageID string) ([]model.Reaction, error)
	ListByMessages(ctx context.Context, messageIDs []string) (map[string][]model.Reaction, error)
}

// Publisher fans an event out to a party's room and reports how many live
// connections accepted it. *relay.Registry implements it.
type Publisher interface {
	Publish(partyID string, eventType string, payload any) int
}

// Notifier delivers a best-effort offline notification. Nil disables it.
type Notifier interface {
	Notify(ctx context.Context, partyID, title, body string, data map[string]string)
}

type Messaging struct {
	msgs     MessageStore
	reacts   ReactionStore
	resolver identity.Resolver
	relay    Publisher
	notifier Notifier
}

func New(msgs MessageStore, reacts ReactionStore, resolver identity.Resolver, relay Publisher, notifier Notifier) *Messaging {
	return &Messaging{msgs: msgs, reacts: reacts, resolver: resolver, relay: relay, notifier: notifier}
}

// Send validates and persists a new message, then pushes it to the receiver's
// room. The push is dispatched asynchronously and its outcome is never
// surfaced to the caller: if the receiver is offline the durable store is the
// recovery path, not a retry.
func (s *Messaging) Send(ctx context.Context, sender, receiver, body string, attachments []model.Attachment) (*model.Message, error) {
	defer logger.DeferLogDuration("svc.Send", time.Now())()
	if receiver == "" {
		return nil, fmt.Errorf("%w: receiver required", ErrValidation)
	}
	if strings.TrimSpace(body) == "" && len(attachments) == 0 {
		return nil, fmt.Errorf("%w: body or attachments required", ErrValidation)
	}

	m := &model.Message{
		ID:          uuid.New().String(),
		SenderID:    sender,
		ReceiverID:  receiver,
		Body:        body,
		Attachments: attachments,
		Status:      model.MessageStatusSent,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.msgs.Create(ctx, m); err != nil {
		return nil, err
	}
	metrics.MessagesCreated.Inc()

	go s.pushCreated(m)
	return m, nil
}

// pushCreated runs off the caller's request path. Zero reached connections
// means the receiver is offline; fall back to the best-effort notifier.
func (s *Messaging) pushCreated(m *model.Message) {
	reached := s.relay.Publish(m.ReceiverID, relay.EventReceiveMessage, m)
	if reached > 0 || s.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	title := "New message"
	if p, err := s.resolver.Resolve(ctx, m.SenderID); err == nil {
		title = p.DisplayName
	}
	body := m.Body
	if body == "" {
		body = "Attachment"
	}
	if len(body) > 120 {
		body = body[:117] + "..."
	}
	s.notifier.Notify(ctx, m.ReceiverID, title, body, map[string]string{"message_id": m.ID, "sender_id": m.SenderID})
}

// Conversation returns all messages between requester and counterpart in
// creation order and, as a side effect, marks the counterpart's pending
// messages delivered. The counterpart's room is told about the transition.
func (s *Messaging) Conversation(ctx context.Context, requester, counterpart string) ([]model.Message, error) {
	defer logger.DeferLogDuration("svc.Conversation", time.Now())()
	delivered, err := s.msgs.MarkDelivered(ctx, counterpart, requester)
	if err != nil {
		return nil, err
	}
	if delivered > 0 {
		s.relay.Publish(counterpart, relay.EventMessagesDelivered, relay.DeliveredPayload{PartyID: requester})
	}

	messages, err := s.msgs.ListConversation(ctx, requester, counterpart)
	if err != nil {
		return nil, err
	}
	if err := s.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Messaging) attachReactions(ctx context.Context, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]string, 0, len(messages))
	for i := range messages {
		ids = append(ids, messages[i].ID)
	}
	byMessage, err := s.reacts.ListByMessages(ctx, ids)
	if err != nil {
		return err
	}
	for i := range messages {
		messages[i].Reactions = byMessage[messages[i].ID]
	}
	return nil
}

// MarkRead acknowledges every unread message from counterpart to requester.
// Idempotent; a read message never regresses.
func (s *Messaging) MarkRead(ctx context.Context, requester, counterpart string) error {
	defer logger.DeferLogDuration("svc.MarkRead", time.Now())()
	n, err := s.msgs.MarkRead(ctx, counterpart, requester)
	if err != nil {
		return err
	}
	if n > 0 {
		s.relay.Publish(counterpart, relay.EventMessagesRead, relay.ReadPayload{PartyID: requester})
	}
	return nil
}

// MarkReadIDs acknowledges an explicit message id list. Only messages
// addressed to the requester transition; the rest of the list is ignored.
// Senders of the acknowledged messages are notified once each.
func (s *Messaging) MarkReadIDs(ctx context.Context, requester string, ids []string) error {
	defer logger.DeferLogDuration("svc.MarkReadIDs", time.Now())()
	if len(ids) == 0 {
		return fmt.Errorf("%w: message ids required", ErrValidation)
	}
	senders := make(map[string][]string, 2)
	for _, id := range ids {
		m, err := s.msgs.GetByID(ctx, id)
		if err != nil {
			continue
		}
		if m.ReceiverID == requester && m.Status != model.MessageStatusRead {
			senders[m.SenderID] = append(senders[m.SenderID], id)
		}
	}
	if _, err := s.msgs.MarkReadByIDs(ctx, requester, ids); err != nil {
		return err
	}
	for sender, readIDs := range senders {
		s.relay.Publish(sender, relay.EventMessagesRead, relay.ReadPayload{PartyID: requester, MessageIDs: readIDs})
	}
	return nil
}

// SoftDelete tombstones a message. Only the sender may delete; the message
// keeps its identity, position and attachments. Never hard-deletes.
func (s *Messaging) SoftDelete(ctx context.Context, requester, messageID string) (*model.Message, error) {
	defer logger.DeferLogDuration("svc.SoftDelete", time.Now())()
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != requester {
		return nil, fmt.Errorf("%w: only the sender may delete a message", ErrForbidden)
	}

	deleted, err := s.msgs.SoftDelete(ctx, messageID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.relay.Publish(m.ReceiverID, relay.EventMessageDeleted, relay.MessageDeletedPayload{MessageID: messageID})
	return deleted, nil
}

// ToggleReaction flips the requester's (emoji) reaction on a message they can
// see. Either participant may react; nobody else.
func (s *Messaging) ToggleReaction(ctx context.Context, requester, messageID, emoji string) (*model.Message, error) {
	defer logger.DeferLogDuration("svc.ToggleReaction", time.Now())()
	if emoji == "" {
		return nil, fmt.Errorf("%w: emoji required", ErrValidation)
	}
	m, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if requester != m.SenderID && requester != m.ReceiverID {
		return nil, fmt.Errorf("%w: message not visible to requester", ErrForbidden)
	}

	added, err := s.reacts.Toggle(ctx, messageID, requester, emoji)
	if err != nil {
		return nil, err
	}
	m.Reactions, err = s.reacts.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	s.relay.Publish(m.Counterpart(requester), relay.EventReactionUpdated, relay.ReactionPayload{
		MessageID: messageID,
		PartyID:   requester,
		Emoji:     emoji,
		Added:     added,
	})
	return m, nil
}

// UnreadCount returns how many non-deleted messages addressed to the party
// are not yet read.
func (s *Messaging) UnreadCount(ctx context.Context, party string) (int, error) {
	defer logger.DeferLogDuration("svc.UnreadCount", time.Now())()
	return s.msgs.UnreadCount(ctx, party)
}
