package nostr

import (
	"context"
	"time"
)

// SourceUpdate notifies watchers that a video list changed upstream.
type SourceUpdate struct {
	Kind       FeedKind
	Author     Pubkey
	EventCount int
	Timestamp  time.Time
}

// EventSource is the relay-backed video event service consumed by the feed
// and curation reducers. Implementations own their relay subscriptions and
// internal storage; reducers only read lists and command pagination.
type EventSource interface {
	// DiscoveryVideos returns the current discovery feed backlog.
	DiscoveryVideos() []VideoEvent
	// AuthorVideos returns the currently loaded videos for one author.
	AuthorVideos(author Pubkey) []VideoEvent
	// SubscribeToUserVideos opens (or widens) the relay subscription for an
	// author's videos up to the provided limit.
	SubscribeToUserVideos(ctx context.Context, author Pubkey, limit int) error
	// LoadMoreEvents requests up to limit older events for the feed kind and
	// reports how many new events were actually loaded.
	LoadMoreEvents(ctx context.Context, kind FeedKind, limit int) (int, error)
	// EventCount reports the number of currently loaded events for the kind.
	EventCount(kind FeedKind) int
	// Watch delivers a SourceUpdate whenever a video list changes. The
	// cleanup function releases the watcher.
	Watch(ctx context.Context) (<-chan SourceUpdate, func())
}
