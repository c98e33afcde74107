package nostr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	eventIDLength = 64
	pubkeyLength  = 64
)

var (
	// ErrInvalidEventID indicates that an event identifier is empty or malformed.
	ErrInvalidEventID = errors.New("nostr: invalid event id")
	// ErrInvalidPubkey indicates that an author public key is empty or malformed.
	ErrInvalidPubkey = errors.New("nostr: invalid pubkey")
)

// EventID represents a validated hex event identifier.
type EventID string

// NewEventID validates raw input and returns an EventID.
func NewEventID(rawInput string) (EventID, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEventID)
	}
	if len(trimmed) != eventIDLength || !isHex(trimmed) {
		return "", fmt.Errorf("%w: expected %d hex characters", ErrInvalidEventID, eventIDLength)
	}
	return EventID(trimmed), nil
}

// String returns the underlying hex identifier.
func (id EventID) String() string {
	return string(id)
}

// Pubkey represents a validated hex author public key.
type Pubkey string

// NewPubkey validates raw input and returns a Pubkey.
func NewPubkey(rawInput string) (Pubkey, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPubkey)
	}
	if len(trimmed) != pubkeyLength || !isHex(trimmed) {
		return "", fmt.Errorf("%w: expected %d hex characters", ErrInvalidPubkey, pubkeyLength)
	}
	return Pubkey(trimmed), nil
}

// String returns the underlying hex key.
func (pk Pubkey) String() string {
	return string(pk)
}

func isHex(value string) bool {
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// VideoEvent is one short-video post sourced from the relay layer. Instances
// are immutable once constructed; reducers reference them, never mutate them.
type VideoEvent struct {
	ID           EventID
	Pubkey       Pubkey
	CreatedAt    time.Time
	URL          string
	ThumbnailURL string
	Title        string
	Duration     time.Duration
}

// FeedKind identifies which relay-backed video list a reducer consumes.
type FeedKind string

const (
	// FeedDiscovery is the global discovery feed.
	FeedDiscovery FeedKind = "discovery"
	// FeedAuthor is a single author's video list.
	FeedAuthor FeedKind = "author"
	// FeedEditorsPicks is the curated editor-picks set.
	FeedEditorsPicks FeedKind = "editors_picks"
	// FeedTrending is the analytics-derived trending set.
	FeedTrending FeedKind = "trending"
)
