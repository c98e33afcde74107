package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/untreu2/divine-state/internal/logging"
	"github.com/untreu2/divine-state/internal/nostr"
	"github.com/untreu2/divine-state/internal/watch"
	"go.uber.org/zap"
)

const defaultPageSize = 20

var (
	errMissingSource   = errors.New("feed: event source is required")
	errMissingProfiles = errors.New("feed: profile cache is required")
	errMissingAuthor   = errors.New("feed: author pubkey is required")
)

// ProfileCache is the subset of the profile cache accessor the reducer needs
// for prefetching feed authors.
type ProfileCache interface {
	HasProfile(pubkey nostr.Pubkey) bool
	FetchMultipleProfiles(ctx context.Context, pubkeys []nostr.Pubkey) error
}

// Config describes the dependencies for a feed reducer.
type Config struct {
	Source   nostr.EventSource
	Profiles ProfileCache
	// Author selects the profile-feed variant; empty selects discovery.
	Author       nostr.Pubkey
	PageSize     int
	FetchTimeout time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Reducer combines the event source's video list with profile prefetching
// into immutable State snapshots. One instance serves one feed (discovery or
// a single author) and owns its emitted state exclusively.
type Reducer struct {
	source       nostr.EventSource
	profiles     ProfileCache
	kind         nostr.FeedKind
	author       nostr.Pubkey
	pageSize     int
	fetchTimeout time.Duration
	clock        func() time.Time
	logger       *zap.Logger
	hub          *watch.Hub[State]

	mu      sync.Mutex
	state   State
	busy    bool
	closed  bool
	detach  func()
	watchWG sync.WaitGroup
}

// NewDiscoveryReducer constructs a reducer over the global discovery feed.
func NewDiscoveryReducer(cfg Config) (*Reducer, error) {
	return newReducer(nostr.FeedDiscovery, cfg)
}

// NewAuthorReducer constructs a reducer over one author's video feed.
func NewAuthorReducer(cfg Config) (*Reducer, error) {
	if cfg.Author == "" {
		return nil, errMissingAuthor
	}
	return newReducer(nostr.FeedAuthor, cfg)
}

func newReducer(kind nostr.FeedKind, cfg Config) (*Reducer, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	if cfg.Profiles == nil {
		return nil, errMissingProfiles
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reducer{
		source:       cfg.Source,
		profiles:     cfg.Profiles,
		kind:         kind,
		author:       cfg.Author,
		pageSize:     pageSize,
		fetchTimeout: cfg.FetchTimeout,
		clock:        clock,
		logger:       logging.OrNop(cfg.Logger),
		hub:          watch.NewHub[State](),
		state:        State{HasMoreContent: true},
	}, nil
}

// Start performs the initial build and begins reacting to source updates.
// For the author variant it first opens the upstream subscription.
func (r *Reducer) Start(ctx context.Context) error {
	if r.kind == nostr.FeedAuthor {
		if err := r.source.SubscribeToUserVideos(ctx, r.author, r.pageSize); err != nil {
			return err
		}
	}

	updates, cancelWatch := r.source.Watch(ctx)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancelWatch()
		return nil
	}
	r.detach = cancelWatch
	r.mu.Unlock()

	r.rebuild(ctx)

	r.watchWG.Add(1)
	go func() {
		defer r.watchWG.Done()
		for update := range updates {
			if update.Kind != r.kind {
				continue
			}
			if r.kind == nostr.FeedAuthor && update.Author != "" && update.Author != r.author {
				continue
			}
			r.rebuild(ctx)
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

// LoadMore requests one more page from the event source. A call made while
// another user-triggered operation is still in flight is rejected as a no-op;
// concurrent user actions are never queued.
func (r *Reducer) LoadMore(ctx context.Context) error {
	if !r.acquire() {
		return nil
	}
	defer r.release()

	r.emit(func(state *State) { state.IsLoadingMore = true })

	loaded, err := r.source.LoadMoreEvents(ctx, r.kind, r.pageSize)
	if err != nil {
		r.logger.Warn("feed load more failed",
			zap.String("kind", string(r.kind)),
			zap.Error(err))
		r.emit(func(state *State) {
			state.IsLoadingMore = false
			state.Err = err.Error()
		})
		return nil
	}

	videos, prefetchErr := r.assemble(ctx)
	r.emit(func(state *State) {
		state.IsLoadingMore = false
		state.HasMoreContent = loaded > 0
		state.LastUpdated = r.clock().UTC()
		if prefetchErr != nil {
			state.Err = prefetchErr.Error()
			return
		}
		state.Videos = videos
		state.Err = ""
	})
	return nil
}

// Refresh invalidates the upstream subscription and forces a full rebuild.
// Like LoadMore, a Refresh issued while another user-triggered operation is
// in flight is rejected as a no-op.
func (r *Reducer) Refresh(ctx context.Context) error {
	if !r.acquire() {
		return nil
	}
	defer r.release()

	if r.kind == nostr.FeedAuthor {
		if err := r.source.SubscribeToUserVideos(ctx, r.author, r.pageSize); err != nil {
			r.emit(func(state *State) { state.Err = err.Error() })
			return nil
		}
	}
	r.emit(func(state *State) { state.HasMoreContent = true })
	r.rebuild(ctx)
	return nil
}

// Close detaches from the event source and drops all subscribers. A fetch
// still in flight completes against a dead hub and its result is discarded.
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

// rebuild recomputes the full snapshot from the source, prefetching any
// uncached author profiles before the new list is emitted. On prefetch
// failure the prior video list is preserved and only the error field is set.
func (r *Reducer) rebuild(ctx context.Context) {
	videos, err := r.assemble(ctx)
	r.emit(func(state *State) {
		if err != nil {
			state.Err = err.Error()
			return
		}
		state.Videos = videos
		state.Err = ""
		state.LastUpdated = r.clock().UTC()
	})
}

// assemble reads the current video list, sorts it newest first, and resolves
// missing author profiles with one batched fetch.
func (r *Reducer) assemble(ctx context.Context) ([]nostr.VideoEvent, error) {
	var videos []nostr.VideoEvent
	switch r.kind {
	case nostr.FeedAuthor:
		videos = r.source.AuthorVideos(r.author)
	default:
		videos = r.source.DiscoveryVideos()
	}
	sorted := make([]nostr.VideoEvent, len(videos))
	copy(sorted, videos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	missing := make([]nostr.Pubkey, 0)
	seen := make(map[nostr.Pubkey]struct{})
	for _, video := range sorted {
		if _, dup := seen[video.Pubkey]; dup {
			continue
		}
		seen[video.Pubkey] = struct{}{}
		if !r.profiles.HasProfile(video.Pubkey) {
			missing = append(missing, video.Pubkey)
		}
	}
	if len(missing) > 0 {
		fetchCtx := ctx
		if r.fetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, r.fetchTimeout)
			defer cancel()
		}
		if err := r.profiles.FetchMultipleProfiles(fetchCtx, missing); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// acquire takes the user-operation busy guard. It reports false, without
// blocking, when the reducer is closed or another user-triggered operation
// already holds the guard.
func (r *Reducer) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.busy {
		return false
	}
	r.busy = true
	return true
}

func (r *Reducer) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// emit applies the mutation under the lock and publishes the new snapshot,
// unless the reducer has been closed.
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
