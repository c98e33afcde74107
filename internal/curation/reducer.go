// Package curation mirrors the editor-picks and trending curation sets into
// an immutable state snapshot for the UI.
package curation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/untreu2/divine-state/internal/logging"
	"github.com/untreu2/divine-state/internal/nostr"
	"github.com/untreu2/divine-state/internal/watch"
	"go.uber.org/zap"
)

var (
	errMissingService = errors.New("curation: curation service is required")
	errMissingSource  = errors.New("curation: event source is required")
)

// Service is the curation backend consumed by the reducer.
type Service interface {
	VideosForSetType(kind nostr.FeedKind) []nostr.VideoEvent
	RefreshIfNeeded(ctx context.Context) error
	RefreshCurationSets(ctx context.Context) error
	RefreshTrendingFromAnalytics(ctx context.Context) error
	AnalyticsTrendingVideos() []nostr.VideoEvent
}

// State is the immutable curation snapshot. Pick ordering follows the
// upstream service order untouched.
type State struct {
	EditorsPicks []nostr.VideoEvent `json:"editorsPicks"`
	Trending     []nostr.VideoEvent `json:"trending"`
	IsLoading    bool               `json:"isLoading"`
	Err          string             `json:"error,omitempty"`
	LastUpdated  time.Time          `json:"lastUpdated"`
}

func (s State) clone() State {
	picks := make([]nostr.VideoEvent, len(s.EditorsPicks))
	copy(picks, s.EditorsPicks)
	s.EditorsPicks = picks
	trending := make([]nostr.VideoEvent, len(s.Trending))
	copy(trending, s.Trending)
	s.Trending = trending
	return s
}

// Config describes the dependencies for the curation reducer.
type Config struct {
	Service Service
	Source  nostr.EventSource
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Reducer wraps the curation service. It refreshes automatically when the
// upstream video count changes and on explicit ForceRefresh calls; unrelated
// upstream emissions never trigger a refresh.
type Reducer struct {
	service Service
	source  nostr.EventSource
	clock   func() time.Time
	logger  *zap.Logger
	hub     *watch.Hub[State]

	mu        sync.Mutex
	state     State
	lastCount int
	hasCount  bool
	closed    bool
	detach    func()
	watchWG   sync.WaitGroup
}

// NewReducer constructs the curation reducer.
func NewReducer(cfg Config) (*Reducer, error) {
	if cfg.Service == nil {
		return nil, errMissingService
	}
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reducer{
		service: cfg.Service,
		source:  cfg.Source,
		clock:   clock,
		logger:  logging.OrNop(cfg.Logger),
		hub:     watch.NewHub[State](),
	}, nil
}

// Start performs the initial read and begins watching the event source for
// video-count changes.
func (r *Reducer) Start(ctx context.Context) error {
	updates, cancelWatch := r.source.Watch(ctx)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancelWatch()
		return nil
	}
	r.detach = cancelWatch
	r.mu.Unlock()

	r.refresh(ctx, r.service.RefreshIfNeeded)

	r.watchWG.Add(1)
	go func() {
		defer r.watchWG.Done()
		for update := range updates {
			if update.Kind != nostr.FeedDiscovery {
				continue
			}
			if !r.countChanged(update.EventCount) {
				continue
			}
			r.refresh(ctx, r.service.RefreshIfNeeded)
		}
	}()
	return nil
}

// State returns the current snapshot.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Subscribe registers for snapshot updates.
func (r *Reducer) Subscribe(ctx context.Context) (<-chan State, func()) {
	return r.hub.Subscribe(ctx)
}

// ForceRefresh performs a remote refresh and re-reads the service state. A
// call made while a refresh is already in flight is a no-op.
func (r *Reducer) ForceRefresh(ctx context.Context) error {
	r.refresh(ctx, func(ctx context.Context) error {
		if err := r.service.RefreshCurationSets(ctx); err != nil {
			return err
		}
		return r.service.RefreshTrendingFromAnalytics(ctx)
	})
	return nil
}

// Close detaches from the event source and drops all subscribers.
func (r *Reducer) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	detach := r.detach
	r.detach = nil
	r.mu.Unlock()

	if detach != nil {
		detach()
	}
	r.watchWG.Wait()
	r.hub.Close()
}

// countChanged records the latest upstream count and reports whether it
// differs from the previously seen one. The first observation counts as a
// change so the initial backlog is picked up.
func (r *Reducer) countChanged(count int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hasCount && r.lastCount == count {
		return false
	}
	r.hasCount = true
	r.lastCount = count
	return true
}

// refresh runs the remote step under the busy guard, then re-reads local
// service state. Remote failure preserves the last-known-good lists.
func (r *Reducer) refresh(ctx context.Context, remote func(context.Context) error) {
	r.mu.Lock()
	if r.closed || r.state.IsLoading {
		r.mu.Unlock()
		return
	}
	r.state.IsLoading = true
	snapshot := r.state.clone()
	r.mu.Unlock()
	r.hub.Publish(snapshot)

	remoteErr := remote(ctx)
	if remoteErr != nil {
		r.logger.Warn("curation refresh failed", zap.Error(remoteErr))
		r.emit(func(state *State) {
			state.IsLoading = false
			state.Err = remoteErr.Error()
		})
		return
	}

	picks := r.service.VideosForSetType(nostr.FeedEditorsPicks)
	trending := r.service.AnalyticsTrendingVideos()
	r.emit(func(state *State) {
		state.IsLoading = false
		state.Err = ""
		state.EditorsPicks = picks
		state.Trending = trending
		state.LastUpdated = r.clock().UTC()
	})
}

func (r *Reducer) emit(mutate func(*State)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	mutate(&r.state)
	snapshot := r.state.clone()
	r.mu.Unlock()
	r.hub.Publish(snapshot)
}
