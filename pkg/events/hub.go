package events

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TypeStatusChanged is emitted whenever one or more approval items change status.
const TypeStatusChanged = "status_changed"

// StatusChanged carries the entities whose status moved, batched per student and semester.
type StatusChanged struct {
	Type       string    `json:"event"`
	StudentID  string    `json:"studentId"`
	Semester   string    `json:"semester"`
	EntityIDs  []string  `json:"entityIds"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Subscription is a registered consumer of the hub.
type Subscription struct {
	ID     uint64
	Events <-chan StatusChanged

	ch chan StatusChanged
}

// Hub fans status-changed notifications out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event and catches up on its next poll.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID atomic.Uint64
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[uint64]*Subscription), logger: logger}
}

// Subscribe registers a consumer with the given channel buffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan StatusChanged, buffer)
	sub := &Subscription{ID: h.nextID.Add(1), Events: ch, ch: ch}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	total := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("subscriber registered", zap.Uint64("subscription", sub.ID), zap.Int("total", total))
	return sub
}

// Unsubscribe removes the consumer and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; !ok {
		return
	}
	delete(h.subs, sub.ID)
	close(sub.ch)
}

// Publish delivers the event to every subscriber without blocking.
func (h *Hub) Publish(event StatusChanged) {
	if h == nil {
		return
	}
	if event.Type == "" {
		event.Type = TypeStatusChanged
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("subscriber buffer full, dropping event",
				zap.Uint64("subscription", id),
				zap.String("student_id", event.StudentID),
				zap.String("semester", event.Semester))
		}
	}
}

// Subscribers returns the number of registered consumers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
