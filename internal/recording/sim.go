package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var errSimNotRecording = errors.New("recording: no active recording")

// SimController is an in-process camera controller used by the development
// harness and tests. It writes captures as empty files under a working
// directory and tracks segments with a fake clock-free elapsed counter.
type SimController struct {
	dir   string
	clock func() time.Time

	mu        sync.Mutex
	snapshot  Snapshot
	onChange  func(Snapshot)
	startedAt time.Time
	session   int
}

// NewSimController constructs a simulated controller writing captures to dir.
func NewSimController(dir string, clock func() time.Time) *SimController {
	if clock == nil {
		clock = time.Now
	}
	return &SimController{
		dir:   dir,
		clock: clock,
		snapshot: Snapshot{
			State:       StateIdle,
			AspectRatio: 9.0 / 16.0,
		},
	}
}

func (c *SimController) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}

func (c *SimController) StartRecording(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.snapshot.State = StateRecording
	c.startedAt = c.clock()
	c.snapshot.Segments = append(c.snapshot.Segments, Segment{Start: c.snapshot.Elapsed})
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *SimController) StopRecording(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	if c.snapshot.State != StateRecording {
		c.mu.Unlock()
		return "", errSimNotRecording
	}
	elapsed := c.clock().Sub(c.startedAt)
	c.snapshot.Elapsed += elapsed
	last := len(c.snapshot.Segments) - 1
	c.snapshot.Segments[last].End = c.snapshot.Elapsed
	c.snapshot.State = StateCompleted
	c.session++
	path := filepath.Join(c.dir, fmt.Sprintf("capture-%d.mp4", c.session))
	c.mu.Unlock()

	if err := os.WriteFile(path, []byte{}, 0o600); err != nil {
		c.mu.Lock()
		c.snapshot.State = StateFailed
		c.mu.Unlock()
		c.notify()
		return "", err
	}
	c.notify()
	return path, nil
}

func (c *SimController) SwitchCamera(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.snapshot.FrontCamera = !c.snapshot.FrontCamera
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *SimController) SetAspectRatio(ratio float64) error {
	if ratio <= 0 {
		return fmt.Errorf("recording: invalid aspect ratio %f", ratio)
	}
	c.mu.Lock()
	c.snapshot.AspectRatio = ratio
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *SimController) Reset() {
	c.mu.Lock()
	c.snapshot = Snapshot{State: StateIdle, AspectRatio: c.snapshot.AspectRatio}
	c.mu.Unlock()
	c.notify()
}

func (c *SimController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := c.snapshot
	snapshot.Segments = append([]Segment(nil), c.snapshot.Segments...)
	return snapshot
}

func (c *SimController) SetOnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *SimController) Release() {}

func (c *SimController) notify() {
	c.mu.Lock()
	fn := c.onChange
	snapshot := c.snapshot
	snapshot.Segments = append([]Segment(nil), c.snapshot.Segments...)
	c.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}
