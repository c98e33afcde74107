// Package readiness composes the boolean gates that tell consumers when
// relay-backed subscriptions may start, and answers route-derived visibility
// questions from the current page context.
package readiness

import (
	"context"
	"sync"

	"github.com/untreu2/divine-state/internal/watch"
)

// Snapshot is the immutable gate state delivered to subscribers.
type Snapshot struct {
	Foregrounded bool `json:"foregrounded"`
	RelayReady   bool `json:"relayReady"`
	AppReady     bool `json:"appReady"`
}

// Gates tracks the foreground and relay-initialization flags. AppReady is
// their logical AND; every input change propagates immediately, with no
// hysteresis or debouncing.
type Gates struct {
	mu           sync.Mutex
	foregrounded bool
	relayReady   bool
	hub          *watch.Hub[Snapshot]
}

// NewGates constructs gates with both flags down.
func NewGates() *Gates {
	return &Gates{hub: watch.NewHub[Snapshot]()}
}

// SetForeground records the app foreground flag.
func (g *Gates) SetForeground(foregrounded bool) {
	g.set(func() { g.foregrounded = foregrounded })
}

// SetRelayReady records the relay-initialization flag.
func (g *Gates) SetRelayReady(ready bool) {
	g.set(func() { g.relayReady = ready })
}

// AppReady reports whether the app is foregrounded and the relay layer is
// initialized.
func (g *Gates) AppReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.foregrounded && g.relayReady
}

// State returns the current snapshot.
func (g *Gates) State() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Subscribe registers for gate changes.
func (g *Gates) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	return g.hub.Subscribe(ctx)
}

// Close drops all subscribers.
func (g *Gates) Close() {
	g.hub.Close()
}

func (g *Gates) set(mutate func()) {
	g.mu.Lock()
	before := g.snapshotLocked()
	mutate()
	after := g.snapshotLocked()
	g.mu.Unlock()
	if before != after {
		g.hub.Publish(after)
	}
}

func (g *Gates) snapshotLocked() Snapshot {
	return Snapshot{
		Foregrounded: g.foregrounded,
		RelayReady:   g.relayReady,
		AppReady:     g.foregrounded && g.relayReady,
	}
}
