package middleware

import "context"

type contextKey string

const PartyIDKey contextKey = "party_id"

// GetPartyID returns the authenticated party id from the context
// (set by PartyAuth).
func GetPartyID(ctx context.Context) string {
	v, _ := ctx.Value(PartyIDKey).(string)
	return v
}

// WithPartyID returns a context carrying the party id; used by tests and by
// the auth middleware.
func WithPartyID(ctx context.Context, partyID string) context.Context {
	return context.WithValue(ctx, PartyIDKey, partyID)
}
