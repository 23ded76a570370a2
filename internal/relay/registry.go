package relay

import (
	"errors"
	"sync"

	"github.com/casedesk/messaging/internal/logger"
	"github.com/casedesk/messaging/internal/metrics"
)

// ErrRegistryFull rejects new connections once the process-wide limit is hit.
var ErrRegistryFull = errors.New("connection limit reached")

// subscriber is one realtime connection inside a room. enqueue must never
// block; it reports whether the event was accepted.
type subscriber interface {
	enqueue(Event) bool
	Close()
}

// Registry holds one room per party id: the set of that party's live
// connections. It is process-local state owned by the service process and is
// never persisted; a connection vanishes from its room the moment it closes.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[subscriber]struct{}
	total    int
	maxConns int
}

func NewRegistry(maxConns int) *Registry {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Registry{
		rooms:    make(map[string]map[subscriber]struct{}),
		maxConns: maxConns,
	}
}

// Join adds a connection to the party's room. A party may hold any number of
// simultaneous connections; all of them receive the room's fan-out.
func (r *Registry) Join(partyID string, sub subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total >= r.maxConns {
		return ErrRegistryFull
	}
	if _, ok := r.rooms[partyID]; !ok {
		r.rooms[partyID] = make(map[subscriber]struct{})
	}
	r.rooms[partyID][sub] = struct{}{}
	r.total++
	metrics.RelayConnections.Set(float64(r.total))
	return nil
}

// Leave removes a connection from its room. Unknown connections are a no-op,
// so double-leaves during teardown are harmless.
func (r *Registry) Leave(partyID string, sub subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[partyID]
	if !ok {
		return
	}
	if _, exists := room[sub]; !exists {
		return
	}
	delete(room, sub)
	r.total--
	if len(room) == 0 {
		delete(r.rooms, partyID)
	}
	metrics.RelayConnections.Set(float64(r.total))
}

// Publish pushes an event to every connection in the party's room and returns
// how many accepted it. An empty room drops the event silently: the durable
// store is the source of truth for anything missed. Never blocks.
func (r *Registry) Publish(partyID string, eventType string, payload any) int {
	r.mu.RLock()
	room, ok := r.rooms[partyID]
	if !ok || len(room) == 0 {
		r.mu.RUnlock()
		metrics.RelayMissed.Inc()
		return 0
	}
	targets := make([]subscriber, 0, len(room))
	for sub := range room {
		targets = append(targets, sub)
	}
	r.mu.RUnlock()

	ev := Event{Type: eventType, Payload: payload}
	reached := 0
	for _, sub := range targets {
		if sub.enqueue(ev) {
			reached++
		}
	}
	if reached > 0 {
		metrics.RelayPublished.Inc()
	} else {
		metrics.RelayMissed.Inc()
	}
	return reached
}

// Connected reports whether the party has at least one live connection.
func (r *Registry) Connected(partyID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[partyID]) > 0
}

// Shutdown empties all rooms and closes every connection. Collects targets
// under the lock, performs network I/O outside it.
func (r *Registry) Shutdown() []subscriber {
	r.mu.Lock()
	all := make([]subscriber, 0, r.total)
	for _, room := range r.rooms {
		for sub := range room {
			all = append(all, sub)
		}
	}
	r.rooms = make(map[string]map[subscriber]struct{})
	r.total = 0
	metrics.RelayConnections.Set(0)
	r.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	logger.Infof("relay: closed %d connections on shutdown", len(all))
	return all
}
