package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/casedesk/messaging/internal/identity"
	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/model"
)

// Inbox derives the requester's conversation list from the flat message
// store: one view per distinct counterpart, carrying the most recent message
// and the requester's unread count, newest conversation first.
//
// One linear pass over the requester's messages, plus one identity lookup per
// distinct counterpart. Soft-deleted messages still represent a conversation
// (their body is the tombstone) but never count as unread. A counterpart that
// resolves in no directory — a removed account — is dropped, not an error.
func (s *Messaging) Inbox(ctx context.Context, requester string) ([]model.ConversationView, error) {
	defer logger.DeferLogDuration("svc.Inbox", time.Now())()
	messages, err := s.msgs.ListForParty(ctx, requester)
	if err != nil {
		return nil, err
	}

	type group struct {
		last   model.Message
		unread int
	}
	groups := make(map[string]*group, 16)
	// Messages arrive in (created_at, seq) order, so overwriting on every
	// visit leaves the group holding the latest message, with equal
	// timestamps resolved in favor of the most recently inserted.
	for i := range messages {
		m := &messages[i]
		cp := m.Counterpart(requester)
		g, ok := groups[cp]
		if !ok {
			g = &group{}
			groups[cp] = g
		}
		g.last = *m
		if m.ReceiverID == requester && m.Status != model.MessageStatusRead && !m.IsDeleted {
			g.unread++
		}
	}

	views := make([]model.ConversationView, 0, len(groups))
	for cp, g := range groups {
		profile, err := s.resolver.Resolve(ctx, cp)
		if errors.Is(err, identity.ErrUnknownParty) {
			continue
		}
		if err != nil {
			return nil, err
		}
		last := g.last
		views = append(views, model.ConversationView{
			Counterpart: *profile,
			LastMessage: &last,
			UnreadCount: g.unread,
		})
	}

	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i].LastMessage, views[j].LastMessage
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.Seq > b.Seq
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return views, nil
}
