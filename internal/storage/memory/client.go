// Package memory is the in-process session store used by -dev mode, where no
// Redis is available. Tokens are seeded via Put (e.g. from a fixture).
package memory

import (
	"context"
	"sync"
)

type Client struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func New() *Client {
	return &Client{sessions: make(map[string]string)}
}

func (c *Client) Put(token, partyID string) {
	c.mu.Lock()
	c.sessions[token] = partyID
	c.mu.Unlock()
}

func (c *Client) Delete(token string) {
	c.mu.Lock()
	delete(c.sessions, token)
	c.mu.Unlock()
}

func (c *Client) PartyForToken(_ context.Context, token string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessions[token], nil
}

func (c *Client) Close() error { return nil }
