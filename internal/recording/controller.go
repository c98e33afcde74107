package recording

import (
	"context"
	"time"
)

// State enumerates the camera controller lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Segment is one recorded span within a session.
type Segment struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Snapshot is the camera controller's internal state as observed at one
// point in time.
type Snapshot struct {
	State       State
	Progress    float64
	Elapsed     time.Duration
	Segments    []Segment
	FrontCamera bool
	FlashOn     bool
	AspectRatio float64
}

// Controller is the platform camera/recording controller wrapped by the
// notifier. The notifier owns its controller exclusively: no other component
// may command it.
type Controller interface {
	Initialize(ctx context.Context) error
	StartRecording(ctx context.Context) error
	// StopRecording finalizes the session and returns the captured file path.
	StopRecording(ctx context.Context) (string, error)
	SwitchCamera(ctx context.Context) error
	SetAspectRatio(ratio float64) error
	Reset()
	Snapshot() Snapshot
	// SetOnChange registers the single state-change callback; passing nil
	// detaches it.
	SetOnChange(fn func(Snapshot))
	Release()
}
