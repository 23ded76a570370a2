package model

import "time"

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
)

// statusRank orders statuses so transitions can be checked for monotonicity.
var statusRank = map[MessageStatus]int{
	MessageStatusSent:      0,
	MessageStatusDelivered: 1,
	MessageStatusRead:      2,
}

// Before reports whether s precedes o in the sent -> delivered -> read chain.
// A status never moves backwards; skipping delivered is allowed.
func (s MessageStatus) Before(o MessageStatus) bool {
	return statusRank[s] < statusRank[o]
}

type AttachmentKind string

const (
	AttachmentKindImage    AttachmentKind = "image"
	AttachmentKindDocument AttachmentKind = "document"
	AttachmentKindVoice    AttachmentKind = "voice"
)

// Attachment references a pre-uploaded file. The subsystem never uploads;
// it only stores descriptors handed in at message creation.
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url"`
	FileName string         `json:"file_name"`
	FileSize int64          `json:"file_size"`
}

// Tombstone replaces the body of a soft-deleted message. Attachments are kept.
const Tombstone = "This message was deleted"

type Message struct {
	ID          string        `json:"id"`
	SenderID    string        `json:"sender_id"`
	ReceiverID  string        `json:"receiver_id"`
	Body        string        `json:"body"`
	Attachments []Attachment  `json:"attachments,omitempty"`
	Status      MessageStatus `json:"status"`
	Reactions   []Reaction    `json:"reactions,omitempty"`
	IsDeleted   bool          `json:"is_deleted"`
	DeletedAt   *time.Time    `json:"deleted_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`

	// Seq is the insertion order assigned by the store; it breaks
	// created_at ties so conversation ordering is stable.
	Seq int64 `json:"-"`

	Sender   *PartyProfile `json:"sender,omitempty"`
	Receiver *PartyProfile `json:"receiver,omitempty"`
}

// Counterpart returns the other participant relative to party.
func (m *Message) Counterpart(party string) string {
	if m.SenderID == party {
		return m.ReceiverID
	}
	return m.SenderID
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	PartyID   string    `json:"party_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
