package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/maheshrc27/socialhub/internal/metrics"
)

type EventType string

const (
	EventPostCreated EventType = "POST_CREATED"
	EventNewComment  EventType = "NEW_COMMENT"
	EventStockUpdate EventType = "STOCK_UPDATE"
)

// Event is one message pushed to websocket clients. UserID 0 reaches every subscriber,
// otherwise only the subscribers of that user.
type Event struct {
	Type   EventType `json:"type"`
	UserID int64     `json:"-"`
	Symbol string    `json:"symbol,omitempty"`
	Data   any       `json:"data"`
}

type Subscriber struct {
	ID     string
	UserID int64
	send   chan Event
}

// Events is closed once the subscriber has been removed from the hub.
func (s *Subscriber) Events() <-chan Event {
	return s.send
}

func (s *Subscriber) wants(e Event) bool {
	return e.UserID == 0 || e.UserID == s.UserID
}

// Hub keeps the set of connected subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   map[string]*Subscriber{},
		buffer: buffer,
	}
}

func (h *Hub) Subscribe(userID int64) *Subscriber {
	sub := &Subscriber{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan Event, h.buffer),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	metrics.RealtimeSubscribers.Inc()
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub.ID)
}

// remove must be called with mu held for writing.
func (h *Hub) remove(id string) bool {
	sub, ok := h.subs[id]
	if !ok {
		return false
	}
	delete(h.subs, id)
	close(sub.send)
	metrics.RealtimeSubscribers.Dec()
	return true
}

// Broadcast hands the event to every interested subscriber without waiting.
// A subscriber whose buffer is full is dropped; the rest still get the event.
// It returns the number of subscribers the event was queued for.
func (h *Hub) Broadcast(e Event) int {
	var (
		delivered int
		stalled   []string
	)

	h.mu.RLock()
	for id, sub := range h.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.send <- e:
			delivered++
		default:
			stalled = append(stalled, id)
		}
	}
	h.mu.RUnlock()

	if len(stalled) == 0 {
		return delivered
	}

	h.mu.Lock()
	for _, id := range stalled {
		if h.remove(id) {
			metrics.RealtimeDropped.Inc()
			slog.Info("dropped slow realtime subscriber", "subscriber_id", id, "event", e.Type)
		}
	}
	h.mu.Unlock()

	return delivered
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
