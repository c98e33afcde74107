// Package watch provides the subscription contract shared by the state
// reducers: a reducer publishes immutable snapshots, consumers receive them
// over buffered channels and unsubscribe by cancelling a context or calling
// the returned cleanup function.
package watch

import (
	"context"
	"sync"
)

const defaultBufferSize = 8

// Hub fans immutable snapshots out to registered subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses intermediate snapshots and
// observes only later ones, which is safe because every published value is a
// complete state, not a delta.
type Hub[T any] struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber[T]
	nextID      int64
	closed      bool
}

type subscriber[T any] struct {
	id     int64
	stream chan T
}

// NewHub constructs an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{
		subscribers: make(map[int64]*subscriber[T]),
	}
}

// Subscribe registers a new subscriber. The returned cleanup function is
// idempotent; cancelling ctx triggers it as well. A closed hub returns a
// closed channel so consumers terminate instead of blocking.
func (h *Hub[T]) Subscribe(ctx context.Context) (<-chan T, func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		stream := make(chan T)
		close(stream)
		return stream, func() {}
	}
	h.nextID++
	sub := &subscriber[T]{
		id:     h.nextID,
		stream: make(chan T, defaultBufferSize),
	}
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.unregister(sub.id)
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cleanup()
		}()
	}
	return sub.stream, cleanup
}

// Publish delivers the snapshot to every current subscriber without blocking.
func (h *Hub[T]) Publish(snapshot T) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	copies := make([]*subscriber[T], 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		copies = append(copies, sub)
	}
	h.mu.RUnlock()

	for _, sub := range copies {
		select {
		case sub.stream <- snapshot:
		default:
		}
	}
}

// Close drops all subscribers and closes their channels. Further Publish
// calls are no-ops and further Subscribe calls return closed channels.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.stream)
		delete(h.subscribers, id)
	}
}

func (h *Hub[T]) unregister(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if sub, ok := h.subscribers[id]; ok {
		close(sub.stream)
		delete(h.subscribers, id)
	}
}
