package model

// PartyProfile is display info for a message participant, resolved through an
// external identity directory. The subsystem itself treats party ids as opaque.
type PartyProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Contact     string `json:"contact,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ConversationView is one inbox row for a requesting party: the counterpart,
// the most recent message exchanged with them and the requester's unread
// count. It is derived per request and never stored.
type ConversationView struct {
	Counterpart PartyProfile `json:"counterpart"`
	LastMessage *Message     `json:"last_message,omitempty"`
	UnreadCount int          `json:"unread_count"`
}
