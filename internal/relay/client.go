package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/casedesk/messaging/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536
	sendBufSize    = 256
)

// bufPool pools bytes.Buffer for JSON encoding in the hot path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client is a single realtime connection belonging to one party's room.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan Event
	partyID string

	// done is the non-blocking guard used by enqueue.
	done chan struct{}
	// cancel cancels the context passed to Start, triggering pump shutdown.
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, partyID string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan Event, sendBufSize),
		partyID: partyID,
		done:    make(chan struct{}),
	}
}

// PartyID returns the identifier of the party this connection represents.
func (c *Client) PartyID() string { return c.partyID }

// Start launches the read and write pumps with a controlled lifecycle.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any
// goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		if c.conn != nil {
			// Force both pumps to unblock (ReadMessage / WriteMessage error out).
			c.conn.Close()
		}
	})
}

// enqueue hands an event to the write pump without blocking. A full send
// buffer means the client cannot keep up; it is closed rather than allowed to
// stall the room's fan-out.
func (c *Client) enqueue(ev Event) bool {
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		logger.Errorf("relay: send buffer full, closing slow client party=%s", c.partyID)
		c.Close()
		return false
	}
}

// readPump reads client events from the connection. Exits on read error
// (triggered by conn.Close from Close() or writePump exit).
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("relay: set read deadline party=%s: %v", c.partyID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("relay: read error party=%s: %v", c.partyID, err)
			}
			return
		}

		var ev IncomingEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.Errorf("relay: unmarshal error party=%s: %v", c.partyID, err)
			continue
		}

		c.hub.HandleEvent(ctx, c, ev)
	}
}

// writePump writes events to the connection. Exits on ctx cancellation, write
// error, or connection close.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Errorf("relay: close message party=%s: %v", c.partyID, err)
			}
			return
		case ev := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("relay: set write deadline party=%s: %v", c.partyID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(ev); err != nil {
				bufPool.Put(buf)
				logger.Errorf("relay: marshal error party=%s: %v", c.partyID, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text frames.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("relay: set write deadline party=%s: %v", c.partyID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
