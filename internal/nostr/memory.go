package nostr

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/untreu2/divine-state/internal/watch"
)

const defaultInitialWindow = 20

// MemorySource is an in-process EventSource backed by a seeded backlog. It
// simulates relay pagination deterministically: each list starts with an
// initial window of events and LoadMoreEvents widens the window until the
// backlog is exhausted. The development harness and tests use it in place of
// a live relay connection.
type MemorySource struct {
	mu            sync.RWMutex
	backlogs      map[FeedKind][]VideoEvent
	windows       map[FeedKind]int
	currentAuthor Pubkey
	hub           *watch.Hub[SourceUpdate]
	clock         func() time.Time
}

// NewMemorySource constructs an empty source. Seed events with AddBacklog or
// Append before use.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		backlogs: make(map[FeedKind][]VideoEvent),
		windows:  make(map[FeedKind]int),
		hub:      watch.NewHub[SourceUpdate](),
		clock:    time.Now,
	}
}

// AddBacklog seeds older events that become visible only through pagination.
func (s *MemorySource) AddBacklog(kind FeedKind, events ...VideoEvent) {
	s.mu.Lock()
	s.backlogs[kind] = append(s.backlogs[kind], events...)
	if _, ok := s.windows[kind]; !ok {
		s.windows[kind] = min(defaultInitialWindow, len(s.backlogs[kind]))
	}
	s.mu.Unlock()
}

// Append adds a newly arrived event to the visible window and notifies
// watchers, mimicking a live relay delivery.
func (s *MemorySource) Append(kind FeedKind, event VideoEvent) {
	s.mu.Lock()
	s.backlogs[kind] = append([]VideoEvent{event}, s.backlogs[kind]...)
	s.windows[kind]++
	update := SourceUpdate{
		Kind:       kind,
		Author:     event.Pubkey,
		EventCount: s.windows[kind],
		Timestamp:  s.clock(),
	}
	s.mu.Unlock()
	s.hub.Publish(update)
}

// DiscoveryVideos returns the visible discovery window, newest first.
func (s *MemorySource) DiscoveryVideos() []VideoEvent {
	return s.visible(FeedDiscovery, "")
}

// AuthorVideos returns the visible window for one author, newest first.
func (s *MemorySource) AuthorVideos(author Pubkey) []VideoEvent {
	return s.visible(FeedAuthor, author)
}

// SubscribeToUserVideos records the author of interest and ensures at least
// limit of their events are visible.
func (s *MemorySource) SubscribeToUserVideos(ctx context.Context, author Pubkey, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.currentAuthor = author
	if limit > s.windows[FeedAuthor] {
		s.windows[FeedAuthor] = min(limit, len(s.backlogs[FeedAuthor]))
	}
	s.mu.Unlock()
	return nil
}

// LoadMoreEvents widens the visible window by up to limit backlog events and
// reports how many became visible.
func (s *MemorySource) LoadMoreEvents(ctx context.Context, kind FeedKind, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	remaining := len(s.backlogs[kind]) - s.windows[kind]
	loaded := min(limit, remaining)
	if loaded < 0 {
		loaded = 0
	}
	s.windows[kind] += loaded
	update := SourceUpdate{
		Kind:       kind,
		EventCount: s.windows[kind],
		Timestamp:  s.clock(),
	}
	s.mu.Unlock()
	if loaded > 0 {
		s.hub.Publish(update)
	}
	return loaded, nil
}

// EventCount reports the visible window size for the kind.
func (s *MemorySource) EventCount(kind FeedKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.windows[kind]
}

// Watch delivers SourceUpdates for every visible-list change.
func (s *MemorySource) Watch(ctx context.Context) (<-chan SourceUpdate, func()) {
	return s.hub.Subscribe(ctx)
}

// Close releases all watchers.
func (s *MemorySource) Close() {
	s.hub.Close()
}

func (s *MemorySource) visible(kind FeedKind, author Pubkey) []VideoEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	window := s.windows[kind]
	backlog := s.backlogs[kind]
	if window > len(backlog) {
		window = len(backlog)
	}
	visible := make([]VideoEvent, 0, window)
	for _, event := range backlog[:window] {
		if author != "" && event.Pubkey != author {
			continue
		}
		visible = append(visible, event)
	}
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.After(visible[j].CreatedAt)
	})
	return visible
}
