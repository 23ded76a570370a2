// Package notify is a thin client for the web-push microservice. Everything
// here is best-effort: failures are logged and dropped, never surfaced to the
// message-creation path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/metrics"
)

// Client calls the notify service. An empty baseURL makes every method a
// no-op.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyRequest is the notify service's send payload.
type NotifyRequest struct {
	PartyID string            `json:"party_id"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

// Notify asks the notify service to push to the party's subscriptions.
func (c *Client) Notify(ctx context.Context, partyID, title, body string, data map[string]string) {
	if c.baseURL == "" {
		return
	}
	if err := c.post(ctx, "/api/notify", NotifyRequest{PartyID: partyID, Title: title, Body: body, Data: data}); err != nil {
		metrics.NotifyFailures.Inc()
		logger.Errorf("notify: party=%s: %v", partyID, err)
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify service returned %d", resp.StatusCode)
	}
	return nil
}
