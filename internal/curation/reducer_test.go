package curation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/untreu2/divine-state/internal/nostr"
	"github.com/untreu2/divine-state/internal/watch"
)

type fakeCurationService struct {
	mu           sync.Mutex
	picks        []nostr.VideoEvent
	trending     []nostr.VideoEvent
	refreshCalls int
	remoteCalls  int
	remoteErr    error
	remoteGate   chan struct{}
}

func (s *fakeCurationService) VideosForSetType(kind nostr.FeedKind) []nostr.VideoEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nostr.VideoEvent(nil), s.picks...)
}

func (s *fakeCurationService) RefreshIfNeeded(ctx context.Context) error {
	s.mu.Lock()
	s.refreshCalls++
	err := s.remoteErr
	s.mu.Unlock()
	return err
}

func (s *fakeCurationService) RefreshCurationSets(ctx context.Context) error {
	s.mu.Lock()
	s.remoteCalls++
	gate := s.remoteGate
	err := s.remoteErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (s *fakeCurationService) RefreshTrendingFromAnalytics(ctx context.Context) error {
	return nil
}

func (s *fakeCurationService) AnalyticsTrendingVideos() []nostr.VideoEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]nostr.VideoEvent(nil), s.trending...)
}

func (s *fakeCurationService) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

type stubSource struct {
	hub *watch.Hub[nostr.SourceUpdate]
}

func newStubSource() *stubSource {
	return &stubSource{hub: watch.NewHub[nostr.SourceUpdate]()}
}

func (s *stubSource) DiscoveryVideos() []nostr.VideoEvent             { return nil }
func (s *stubSource) AuthorVideos(nostr.Pubkey) []nostr.VideoEvent    { return nil }
func (s *stubSource) EventCount(nostr.FeedKind) int                   { return 0 }
func (s *stubSource) SubscribeToUserVideos(context.Context, nostr.Pubkey, int) error {
	return nil
}
func (s *stubSource) LoadMoreEvents(context.Context, nostr.FeedKind, int) (int, error) {
	return 0, nil
}
func (s *stubSource) Watch(ctx context.Context) (<-chan nostr.SourceUpdate, func()) {
	return s.hub.Subscribe(ctx)
}

func curationVideo(t *testing.T, seed string) nostr.VideoEvent {
	t.Helper()
	id, err := nostr.NewEventID(strings.Repeat(seed, 64/len(seed)))
	if err != nil {
		t.Fatalf("event id: %v", err)
	}
	return nostr.VideoEvent{ID: id, CreatedAt: time.Unix(1700000000, 0).UTC()}
}

func startedCurationReducer(t *testing.T, service Service, source nostr.EventSource) *Reducer {
	t.Helper()
	reducer, err := NewReducer(Config{Service: service, Source: source})
	if err != nil {
		t.Fatalf("new reducer: %v", err)
	}
	if err := reducer.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(reducer.Close)
	return reducer
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if condition() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("%s", message)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestAutoRefreshFiresOnlyOnCountChange(t *testing.T) {
	service := &fakeCurationService{}
	source := newStubSource()
	startedCurationReducer(t, service, source)

	waitFor(t, func() bool { return service.refreshCount() == 1 }, "initial refresh never ran")

	source.hub.Publish(nostr.SourceUpdate{Kind: nostr.FeedDiscovery, EventCount: 5})
	waitFor(t, func() bool { return service.refreshCount() == 2 }, "count change did not trigger refresh")

	// Same count again: no refresh.
	source.hub.Publish(nostr.SourceUpdate{Kind: nostr.FeedDiscovery, EventCount: 5})
	// Unrelated kind: no refresh.
	source.hub.Publish(nostr.SourceUpdate{Kind: nostr.FeedAuthor, EventCount: 9})
	time.Sleep(20 * time.Millisecond)
	if got := service.refreshCount(); got != 2 {
		t.Fatalf("refresh fired on unrelated emission: %d calls", got)
	}

	source.hub.Publish(nostr.SourceUpdate{Kind: nostr.FeedDiscovery, EventCount: 6})
	waitFor(t, func() bool { return service.refreshCount() == 3 }, "new count did not trigger refresh")
}

func TestForceRefreshIdempotentWhileLoading(t *testing.T) {
	service := &fakeCurationService{remoteGate: make(chan struct{})}
	source := newStubSource()
	reducer := startedCurationReducer(t, service, source)

	done := make(chan struct{})
	go func() {
		_ = reducer.ForceRefresh(context.Background())
		close(done)
	}()
	waitFor(t, func() bool { return reducer.State().IsLoading }, "first refresh never started")

	if err := reducer.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("concurrent force refresh: %v", err)
	}

	close(service.remoteGate)
	<-done

	service.mu.Lock()
	calls := service.remoteCalls
	service.mu.Unlock()
	if calls != 1 {
		t.Fatalf("remote refresh ran %d times under concurrent calls, want 1", calls)
	}
}

func TestForceRefreshFailurePreservesPicks(t *testing.T) {
	service := &fakeCurationService{picks: []nostr.VideoEvent{curationVideo(t, "ab")}}
	source := newStubSource()
	reducer := startedCurationReducer(t, service, source)

	waitFor(t, func() bool { return len(reducer.State().EditorsPicks) == 1 }, "initial picks never loaded")

	service.mu.Lock()
	service.remoteErr = errors.New("analytics endpoint down")
	service.mu.Unlock()

	if err := reducer.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	state := reducer.State()
	if len(state.EditorsPicks) != 1 {
		t.Fatalf("last-known-good picks lost on failure")
	}
	if state.Err == "" {
		t.Fatalf("expected error recorded on state")
	}
}

func TestForceRefreshReadsServiceOrder(t *testing.T) {
	first := curationVideo(t, "0a")
	second := curationVideo(t, "0b")
	service := &fakeCurationService{picks: []nostr.VideoEvent{first, second}}
	source := newStubSource()
	reducer := startedCurationReducer(t, service, source)

	if err := reducer.ForceRefresh(context.Background()); err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	waitFor(t, func() bool { return len(reducer.State().EditorsPicks) == 2 }, "picks never loaded")
	state := reducer.State()
	if state.EditorsPicks[0].ID != first.ID || state.EditorsPicks[1].ID != second.ID {
		t.Fatalf("picks order deviates from service order")
	}
}
