package relay

import (
	"context"
	"time"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/model"
)

// Core is what the hub needs from the messaging engine. Client-originated
// events go through the same validation and persistence as HTTP requests.
type Core interface {
	Send(ctx context.Context, sender, receiver, body string, attachments []model.Attachment) (*model.Message, error)
	MarkRead(ctx context.Context, requester, counterpart string) error
	ToggleReaction(ctx context.Context, requester, messageID, emoji string) (*model.Message, error)
}

// Hub owns connection admission into the registry and dispatches incoming
// client events to the core. Outbound fan-out goes through the Registry,
// which the core publishes to directly.
type Hub struct {
	registry   *Registry
	core       Core
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(registry *Registry, core Core) *Hub {
	return &Hub{
		registry:   registry,
		core:       core,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			if err := h.registry.Join(client.partyID, client); err != nil {
				logger.Errorf("relay: rejecting party=%s: %v", client.partyID, err)
				client.Close()
			}
		case client := <-h.unregister:
			h.registry.Leave(client.partyID, client)
			client.Close()
		}
	}
}

func (h *Hub) shutdown() {
	for _, sub := range h.registry.Shutdown() {
		if c, ok := sub.(*Client); ok {
			c.Wait()
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleEvent dispatches an incoming client event.
func (h *Hub) HandleEvent(ctx context.Context, c *Client, ev IncomingEvent) {
	switch ev.Type {
	case EventSend:
		h.handleSend(ctx, c, ev)
	case EventMarkRead:
		h.handleMarkRead(ctx, c, ev)
	case EventToggleReaction:
		h.handleToggleReaction(ctx, c, ev)
	default:
		c.enqueue(Event{Type: EventError, Payload: ErrorPayload{Message: "unknown event type"}})
	}
}

func (h *Hub) handleSend(ctx context.Context, c *Client, ev IncomingEvent) {
	defer logger.DeferLogDuration("relay.handleSend", time.Now())()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	atts := make([]model.Attachment, 0, len(ev.Attachments))
	for _, a := range ev.Attachments {
		atts = append(atts, model.Attachment{
			Kind:     model.AttachmentKind(a.Kind),
			URL:      a.URL,
			FileName: a.FileName,
			FileSize: a.FileSize,
		})
	}

	m, err := h.core.Send(ctx, c.partyID, ev.ReceiverID, ev.Body, atts)
	if err != nil {
		h.reportError(c, err, "failed to send message")
		return
	}
	// Echo to the sender's own room so their other connections stay in sync;
	// the core has already pushed to the receiver's room.
	h.registry.Publish(c.partyID, EventReceiveMessage, m)
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.PartyID == "" {
		c.enqueue(Event{Type: EventError, Payload: ErrorPayload{Message: "party_id required"}})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := h.core.MarkRead(ctx, c.partyID, ev.PartyID); err != nil {
		h.reportError(c, err, "failed to mark read")
	}
}

func (h *Hub) handleToggleReaction(ctx context.Context, c *Client, ev IncomingEvent) {
	if ev.MessageID == "" || ev.Emoji == "" {
		c.enqueue(Event{Type: EventError, Payload: ErrorPayload{Message: "message_id and emoji required"}})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := h.core.ToggleReaction(ctx, c.partyID, ev.MessageID, ev.Emoji); err != nil {
		h.reportError(c, err, "failed to toggle reaction")
	}
}

func (h *Hub) reportError(c *Client, err error, fallback string) {
	logger.Errorf("relay: party=%s: %v", c.partyID, err)
	c.enqueue(Event{Type: EventError, Payload: ErrorPayload{Message: fallback}})
}
