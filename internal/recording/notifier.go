// Package recording wraps the camera controller into an observable lifecycle
// notifier that mirrors controller state for the UI and persists drafts at
// defined lifecycle points.
package recording

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/untreu2/divine-state/internal/drafts"
	"github.com/untreu2/divine-state/internal/logging"
	"github.com/untreu2/divine-state/internal/proofs"
	"github.com/untreu2/divine-state/internal/watch"
	"go.uber.org/zap"
)

var (
	errMissingController = errors.New("recording: controller is required")
	errMissingDraftStore = errors.New("recording: draft store is required")
	errNotifierClosed    = errors.New("recording: notifier is closed")
)

// CaptureResult is what StopRecording hands back to the caller.
type CaptureResult struct {
	FilePath      string
	ProofManifest string
	DraftID       drafts.DraftID
}

// Config describes the dependencies for the notifier.
type Config struct {
	Controller Controller
	Drafts     drafts.Store
	IDs        drafts.IDProvider
	// Proofs is optional; when set, StopRecording attaches a signed capture
	// manifest to the result and the persisted draft.
	Proofs      *proofs.Signer
	MaxDuration time.Duration
	Platform    string
	Logger      *zap.Logger
}

// Notifier owns one recording session's controller, mirrors its state, and
// guarantees that at most one draft is auto-created per session.
type Notifier struct {
	controller Controller
	drafts     drafts.Store
	ids        drafts.IDProvider
	proofs     *proofs.Signer
	maxDur     time.Duration
	platform   string
	logger     *zap.Logger
	hub        *watch.Hub[UIState]

	mu             sync.Mutex
	state          UIState
	currentDraftID drafts.DraftID
	lastCapture    string
	lastManifest   string
	published      bool
	closed         bool

	finalized chan struct{}
}

// NewNotifier constructs the notifier. Call Initialize before recording.
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.Controller == nil {
		return nil, errMissingController
	}
	if cfg.Drafts == nil {
		return nil, errMissingDraftStore
	}
	ids := cfg.IDs
	if ids == nil {
		ids = drafts.NewUUIDProvider()
	}
	return &Notifier{
		controller: cfg.Controller,
		drafts:     cfg.Drafts,
		ids:        ids,
		proofs:     cfg.Proofs,
		maxDur:     cfg.MaxDuration,
		platform:   cfg.Platform,
		logger:     logging.OrNop(cfg.Logger),
		hub:        watch.NewHub[UIState](),
		state:      UIState{State: StateIdle},
		finalized:  make(chan struct{}),
	}, nil
}

// guardClosed rejects controller-commanding operations once Close has run;
// the finalize goroutine owns the controller from that point on.
func (n *Notifier) guardClosed() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return errNotifierClosed
	}
	return nil
}

// Initialize brings the controller up and begins mirroring its state.
func (n *Notifier) Initialize(ctx context.Context) error {
	if err := n.guardClosed(); err != nil {
		return err
	}
	if err := n.controller.Initialize(ctx); err != nil {
		n.emitError(err)
		return err
	}
	n.controller.SetOnChange(func(snapshot Snapshot) {
		n.emitSnapshot(snapshot)
	})
	n.emitSnapshot(n.controller.Snapshot())
	return nil
}

// State returns the current UI snapshot.
func (n *Notifier) State() UIState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Subscribe registers for UI snapshot updates.
func (n *Notifier) Subscribe(ctx context.Context) (<-chan UIState, func()) {
	return n.hub.Subscribe(ctx)
}

// StartRecording begins a new segment.
func (n *Notifier) StartRecording(ctx context.Context) error {
	if err := n.guardClosed(); err != nil {
		return err
	}
	if err := n.controller.StartRecording(ctx); err != nil {
		n.emitError(err)
		return err
	}
	n.emitSnapshot(n.controller.Snapshot())
	return nil
}

// StopRecording finalizes the capture and auto-creates the session draft.
// The draft guard is set here so that neither a second StopRecording nor the
// dispose-time auto-save can create a duplicate. Draft persistence failure is
// logged, not returned: the capture itself succeeded and the dispose-time
// save will retry while the guard is still empty.
func (n *Notifier) StopRecording(ctx context.Context) (CaptureResult, error) {
	if err := n.guardClosed(); err != nil {
		return CaptureResult{}, err
	}
	filePath, err := n.controller.StopRecording(ctx)
	if err != nil {
		n.emitError(err)
		return CaptureResult{}, err
	}

	manifest := n.signManifest(filePath)

	n.mu.Lock()
	n.lastCapture = filePath
	n.lastManifest = manifest
	existing := n.currentDraftID
	n.mu.Unlock()

	result := CaptureResult{FilePath: filePath, ProofManifest: manifest, DraftID: existing}
	if existing == "" {
		draftID, saveErr := n.createDraft(ctx, filePath, manifest)
		if saveErr != nil {
			n.logger.Warn("draft auto-save at stop failed", zap.Error(saveErr))
		} else {
			n.mu.Lock()
			n.currentDraftID = draftID
			n.mu.Unlock()
			result.DraftID = draftID
		}
	}

	n.emitSnapshot(n.controller.Snapshot())
	return result, nil
}

// SaveDraft persists the last capture on explicit user request. Unlike the
// automatic paths, failures are returned to the caller.
func (n *Notifier) SaveDraft(ctx context.Context) (drafts.DraftID, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return "", errNotifierClosed
	}
	filePath := n.lastCapture
	manifest := n.lastManifest
	existing := n.currentDraftID
	n.mu.Unlock()

	if existing != "" {
		return existing, nil
	}
	draftID, err := n.createDraft(ctx, filePath, manifest)
	if err != nil {
		return "", err
	}
	n.mu.Lock()
	n.currentDraftID = draftID
	n.mu.Unlock()
	return draftID, nil
}

// SwitchCamera toggles between front and back cameras.
func (n *Notifier) SwitchCamera(ctx context.Context) error {
	if err := n.guardClosed(); err != nil {
		return err
	}
	if err := n.controller.SwitchCamera(ctx); err != nil {
		n.emitError(err)
		return err
	}
	n.emitSnapshot(n.controller.Snapshot())
	return nil
}

// SetAspectRatio updates the capture aspect ratio.
func (n *Notifier) SetAspectRatio(ratio float64) error {
	if err := n.guardClosed(); err != nil {
		return err
	}
	if err := n.controller.SetAspectRatio(ratio); err != nil {
		n.emitError(err)
		return err
	}
	n.emitSnapshot(n.controller.Snapshot())
	return nil
}

// MarkAsPublished records that the session's capture was published, which
// suppresses any later dispose-time auto-save.
func (n *Notifier) MarkAsPublished() {
	n.mu.Lock()
	n.published = true
	n.mu.Unlock()
}

// Reset returns the controller to idle and clears the per-session guards so
// the next session may auto-create its own draft. On a closed notifier it is
// a no-op.
func (n *Notifier) Reset() {
	if n.guardClosed() != nil {
		return
	}
	n.controller.Reset()
	n.mu.Lock()
	n.currentDraftID = ""
	n.published = false
	n.lastCapture = ""
	n.lastManifest = ""
	n.mu.Unlock()
	n.emitSnapshot(n.controller.Snapshot())
}

// CleanupAndReset removes the session's capture file from disk and resets.
// File removal failure is logged and swallowed.
func (n *Notifier) CleanupAndReset() {
	if n.guardClosed() != nil {
		return
	}
	n.mu.Lock()
	capture := n.lastCapture
	n.mu.Unlock()
	if capture != "" {
		if err := os.Remove(capture); err != nil && !errors.Is(err, os.ErrNotExist) {
			n.logger.Warn("capture cleanup failed",
				zap.String("file", capture),
				zap.Error(err))
		}
	}
	n.Reset()
}

// Close tears the notifier down in two phases. The synchronous phase detaches
// the controller callback and rejects further operations; the asynchronous
// phase attempts the dispose-time draft auto-save and then releases the
// controller. Auto-save failure never blocks resource release. Done reports
// when the second phase has finished.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	n.controller.SetOnChange(nil)

	go func() {
		defer close(n.finalized)
		n.autoSaveOnDispose()
		n.controller.Release()
		n.hub.Close()
	}()
}

// Done is closed once dispose-time finalization has completed. The harness
// waits on it during shutdown; UI teardown does not.
func (n *Notifier) Done() <-chan struct{} {
	return n.finalized
}

// autoSaveOnDispose persists a draft for an unsaved completed session. The
// guards run in order: a published session needs no draft, an existing draft
// id means StopRecording already created one, and anything but a completed
// controller state means there is no finished capture to save.
func (n *Notifier) autoSaveOnDispose() {
	n.mu.Lock()
	published := n.published
	existing := n.currentDraftID
	filePath := n.lastCapture
	manifest := n.lastManifest
	n.mu.Unlock()

	if published {
		return
	}
	if existing != "" {
		return
	}
	if n.controller.Snapshot().State != StateCompleted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	draftID, err := n.createDraft(ctx, filePath, manifest)
	if err != nil {
		n.logger.Warn("dispose-time draft auto-save failed", zap.Error(err))
		return
	}
	n.mu.Lock()
	n.currentDraftID = draftID
	n.mu.Unlock()
	n.logger.Info("draft auto-saved on dispose", zap.String("draft_id", draftID.String()))
}

func (n *Notifier) createDraft(ctx context.Context, filePath, manifest string) (drafts.DraftID, error) {
	if filePath == "" {
		return "", errors.New("recording: no capture file to save")
	}
	rawID, err := n.ids.NewID()
	if err != nil {
		return "", err
	}
	draftID, err := drafts.NewDraftID(rawID)
	if err != nil {
		return "", err
	}
	snapshot := n.controller.Snapshot()
	draft := &drafts.Draft{
		DraftID:        draftID.String(),
		FilePath:       filePath,
		ProofManifest:  manifest,
		DurationMillis: snapshot.Elapsed.Milliseconds(),
	}
	if err := n.drafts.SaveDraft(ctx, draft); err != nil {
		return "", err
	}
	return draftID, nil
}

// signManifest builds and signs the capture manifest; absent a signer or on
// failure the capture proceeds without one.
func (n *Notifier) signManifest(filePath string) string {
	if n.proofs == nil || filePath == "" {
		return ""
	}
	snapshot := n.controller.Snapshot()
	manifest, err := n.proofs.Sign(proofs.Manifest{
		FilePath:     filePath,
		Platform:     n.platform,
		SegmentCount: len(snapshot.Segments),
		DurationMS:   snapshot.Elapsed.Milliseconds(),
	})
	if err != nil {
		n.logger.Warn("proof manifest signing failed",
			zap.String("file", filePath),
			zap.Error(err))
		return ""
	}
	return manifest
}

func (n *Notifier) emitSnapshot(snapshot Snapshot) {
	n.emit(mirror(snapshot, n.maxDur))
}

func (n *Notifier) emitError(err error) {
	state := mirror(n.controller.Snapshot(), n.maxDur)
	state.Err = err.Error()
	n.emit(state)
}

func (n *Notifier) emit(state UIState) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.state = state
	n.mu.Unlock()
	n.hub.Publish(state)
}
