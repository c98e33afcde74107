package recording

import "time"

// UIState is the immutable recording snapshot exposed to the UI. It mirrors
// the wrapped controller's internal state one-to-one, with two invariants
// enforced at the mirror boundary: Progress stays within [0,1] and Segments
// is only populated while the session is recording or completed.
type UIState struct {
	State       State         `json:"state"`
	Progress    float64       `json:"progress"`
	Elapsed     time.Duration `json:"elapsed"`
	MaxDuration time.Duration `json:"maxDuration"`
	Segments    []Segment     `json:"segments"`
	FrontCamera bool          `json:"frontCamera"`
	FlashOn     bool          `json:"flashOn"`
	AspectRatio float64       `json:"aspectRatio"`
	Err         string        `json:"error,omitempty"`
}

// mirror converts a controller snapshot into a UI state.
func mirror(snapshot Snapshot, maxDuration time.Duration) UIState {
	progress := snapshot.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	segments := snapshot.Segments
	if snapshot.State != StateRecording && snapshot.State != StateCompleted {
		segments = nil
	} else {
		segments = append([]Segment(nil), segments...)
	}
	return UIState{
		State:       snapshot.State,
		Progress:    progress,
		Elapsed:     snapshot.Elapsed,
		MaxDuration: maxDuration,
		Segments:    segments,
		FrontCamera: snapshot.FrontCamera,
		FlashOn:     snapshot.FlashOn,
		AspectRatio: snapshot.AspectRatio,
	}
}
