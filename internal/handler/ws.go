package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/middleware"
	"github.com/casedesk/messaging/internal/relay"
)

type WSHandler struct {
	hub            *relay.Hub
	allowedOrigins string
}

// NewWSHandler creates the realtime upgrade handler. allowedOrigins matches
// the CORS setting (comma-separated, or "*").
func NewWSHandler(hub *relay.Hub, allowedOrigins string) *WSHandler {
	return &WSHandler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins)}
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and joins it to the authenticated party's
// room. Closing the socket removes it from the room; there is no handshake.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	partyID := middleware.GetPartyID(r.Context())
	if partyID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return h.checkOrigin(r) },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := relay.NewClient(h.hub, conn, partyID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
