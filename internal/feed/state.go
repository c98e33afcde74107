package feed

import (
	"time"

	"github.com/untreu2/divine-state/internal/nostr"
)

// State is the immutable feed snapshot exposed to the UI. A reducer replaces
// the whole snapshot on every transition; consumers must never mutate the
// Videos slice they receive.
type State struct {
	Videos         []nostr.VideoEvent `json:"videos"`
	HasMoreContent bool               `json:"hasMoreContent"`
	IsLoadingMore  bool               `json:"isLoadingMore"`
	Err            string             `json:"error,omitempty"`
	LastUpdated    time.Time          `json:"lastUpdated"`
}

// clone returns a copy whose Videos slice is independent of the original.
func (s State) clone() State {
	videos := make([]nostr.VideoEvent, len(s.Videos))
	copy(videos, s.Videos)
	s.Videos = videos
	return s
}
