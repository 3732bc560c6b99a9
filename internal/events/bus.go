package events

import (
	"log/slog"
	"sync"
)

// Bus is a simple in-memory publish/subscribe mechanism. Subscribers are
// notified synchronously, in registration order, on every publish. A
// subscriber that panics does not prevent delivery to the remaining
// subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	order  []int
	subs   map[int]Subscriber
	logger *slog.Logger
}

// NewBus creates a new notification bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		subs:   make(map[int]Subscriber),
		logger: logger.With("component", "event_bus"),
	}
}

// Subscribe registers a subscriber and returns a function that removes it.
// The returned function is idempotent.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.logger.Debug("registered subscriber", "subscriber_count", len(b.subs))

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the notification to all current subscribers in
// registration order. Delivery is synchronous on the caller's goroutine.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.order))
	for _, id := range b.order {
		if fn, ok := b.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.RUnlock()

	b.logger.Debug("publishing notification",
		"kind", n.Kind,
		"task_id", n.TaskID,
		"document_id", n.DocumentID,
		"subscriber_count", len(subs))

	for i, fn := range subs {
		b.deliver(i, fn, n)
	}
}

// deliver invokes one subscriber, recovering from panics so a misbehaving
// observer cannot break delivery to the others.
func (b *Bus) deliver(index int, fn Subscriber, n Notification) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("subscriber panicked during notification",
				"panic", p,
				"subscriber_index", index,
				"kind", n.Kind,
				"task_id", n.TaskID)
		}
	}()

	fn(n)
}
