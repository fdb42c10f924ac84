package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/best07008/kujibiki/internal/metrics"
)

// Event is the wire shape of every broadcast: the serialized form is pushed
// verbatim to each subscriber.
type Event struct {
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber receives the serialized event. Callbacks run synchronously on
// the broadcasting goroutine, so they must not block.
type Subscriber func(message []byte)

// Hub tracks the subscriber set of each live session and fans broadcasts out
// to them. A panicking subscriber never prevents delivery to the others.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[int64]Subscriber
	nextID   int64
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[int64]Subscriber),
	}
}

// EnsureSession registers an empty subscriber set for the session if one is
// not already present.
func (h *Hub) EnsureSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[int64]Subscriber)
	}
}

// RemoveSession drops the session's subscriber set. Live subscribers simply
// stop receiving events; their transports notice via their own disconnects.
func (h *Hub) RemoveSession(sessionID string) {
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()
}

// Subscribe adds a callback to the session's subscriber set and returns the
// matching unsubscribe. Unsubscribing twice is safe.
func (h *Hub) Subscribe(sessionID string, fn Subscriber) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[int64]Subscriber)
	}
	h.nextID++
	id := h.nextID
	h.sessions[sessionID][id] = fn
	metrics.StreamConnectionsActive.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.sessions[sessionID]; ok {
				delete(subs, id)
			}
			h.mu.Unlock()
			metrics.StreamConnectionsActive.Dec()
		})
	}
}

// SubscriberCount reports how many subscribers a session currently has.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Broadcast serializes {event, data, timestamp} once and delivers it to every
// subscriber registered at this moment.
func (h *Hub) Broadcast(sessionID, event string, data interface{}) {
	message, err := json.Marshal(Event{Event: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Printf("ws: marshal %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.sessions[sessionID]))
	for _, fn := range h.sessions[sessionID] {
		subs = append(subs, fn)
	}
	h.mu.RUnlock()

	for _, fn := range subs {
		h.deliver(sessionID, event, fn, message)
	}
	metrics.EventsBroadcastTotal.WithLabelValues(event).Inc()
}

func (h *Hub) deliver(sessionID, event string, fn Subscriber, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: subscriber panic during %s broadcast to session %s: %v", event, sessionID, r)
		}
	}()
	fn(message)
}
