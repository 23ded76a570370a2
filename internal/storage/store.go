// Package storage defines the session-token store consulted by the auth
// middleware. Sessions are created by the embedding application's auth
// service; this subsystem only reads them.
package storage

import "context"

// SessionStore maps bearer tokens to party ids.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type SessionStore interface {
	// PartyForToken returns the party id for a token, or "" when the token
	// is unknown or expired.
	PartyForToken(ctx context.Context, token string) (string, error)
	Close() error
}
