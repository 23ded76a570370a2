package relay

// Event envelope pushed over a realtime connection. Payload uses typed
// structs to avoid heap-heavy map[string]any on the hot path.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Server-to-client event types.
const (
	EventReceiveMessage    = "receive_message"
	EventMessagesDelivered = "messages_delivered"
	EventMessagesRead      = "messages_read"
	EventMessageDeleted    = "message_deleted"
	EventReactionUpdated   = "reaction_updated"
	EventError             = "error"
)

// Client-to-server event types. The core re-validates and persists every one
// of these exactly as it does the HTTP equivalents.
const (
	EventSend           = "send"
	EventMarkRead       = "mark_read"
	EventToggleReaction = "toggle_reaction"
)

// IncomingEvent is what a connected client sends to the server.
type IncomingEvent struct {
	Type string `json:"type"`

	// For send
	ReceiverID  string               `json:"receiver_id,omitempty"`
	Body        string               `json:"body,omitempty"`
	Attachments []IncomingAttachment `json:"attachments,omitempty"`

	// For mark_read: the counterpart whose messages are acknowledged.
	PartyID string `json:"party_id,omitempty"`

	// For toggle_reaction
	MessageID string `json:"message_id,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// IncomingAttachment mirrors model.Attachment on the wire.
type IncomingAttachment struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

// DeliveredPayload notifies a sender that their pending messages to PartyID…
// were fetched by PartyID and are now delivered.
type DeliveredPayload struct {
	PartyID string `json:"party_id"`
}

// ReadPayload notifies a sender that PartyID read their messages. MessageIDs
// is set only for explicit id-list acknowledgments.
type ReadPayload struct {
	PartyID    string   `json:"party_id"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// MessageDeletedPayload notifies the counterpart of a soft deletion.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
}

// ReactionPayload notifies the counterpart of a reaction toggle.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	PartyID   string `json:"party_id"`
	Emoji     string `json:"emoji"`
	Added     bool   `json:"added"`
}

// ErrorPayload is sent back on a malformed or rejected client event.
type ErrorPayload struct {
	Message string `json:"message"`
}
