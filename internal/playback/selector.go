// Package playback picks a video controller implementation per clip. The
// primary engine handles most media but stalls or errors on CDNs that reject
// byte-range probing; the standard engine is the safe fallback.
package playback

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"github.com/untreu2/divine-state/internal/logging"
	"go.uber.org/zap"
)

const defaultInitTimeout = 10 * time.Second

// Error-text signatures indicating the CDN rejected the primary engine's
// byte-range or codec probing. Only these failures trigger a fallback.
var cdnIncompatibilityMarkers = []string{
	"byte-range",
	"byte range",
	"range not satisfiable",
	"416",
	"codec",
	"src_not_supported",
}

var (
	errMissingPrimary  = errors.New("playback: primary factory is required")
	errMissingStandard = errors.New("playback: standard factory is required")

	// ErrInitTimeout is surfaced in logs when the primary engine does not
	// come up within the configured window; the selector then falls back.
	ErrInitTimeout = errors.New("playback: controller initialization timed out")
)

// Controller is an initialized playback controller bound to one media URL.
type Controller interface {
	MediaURL() string
	Engine() string
	Release()
}

// Factory initializes a controller for the given media URL.
type Factory interface {
	NewController(ctx context.Context, url string) (Controller, error)
}

// SelectorConfig describes the dependencies for controller selection.
type SelectorConfig struct {
	Primary  Factory
	Standard Factory
	// Platform overrides runtime.GOOS; the web embedding passes "js".
	Platform    string
	InitTimeout time.Duration
	Logger      *zap.Logger
}

// Selector resolves exactly one controller per request; no placeholder is
// ever handed out while initialization is in flight.
type Selector struct {
	primary     Factory
	standard    Factory
	platform    string
	initTimeout time.Duration
	logger      *zap.Logger
}

// NewSelector constructs a Selector.
func NewSelector(cfg SelectorConfig) (*Selector, error) {
	if cfg.Primary == nil {
		return nil, errMissingPrimary
	}
	if cfg.Standard == nil {
		return nil, errMissingStandard
	}
	platform := cfg.Platform
	if platform == "" {
		platform = runtime.GOOS
	}
	timeout := cfg.InitTimeout
	if timeout <= 0 {
		timeout = defaultInitTimeout
	}
	return &Selector{
		primary:     cfg.Primary,
		standard:    cfg.Standard,
		platform:    platform,
		initTimeout: timeout,
		logger:      logging.OrNop(cfg.Logger),
	}, nil
}

// Select returns the controller to use for the URL. Platforms without the
// primary engine always get the standard controller. Elsewhere the primary
// engine is attempted under the init timeout; a timeout or a
// CDN-incompatibility failure falls back to the standard engine, while any
// other failure propagates to the caller.
func (s *Selector) Select(ctx context.Context, url string) (Controller, error) {
	if s.platform == "js" || s.platform == "darwin" {
		return s.standard.NewController(ctx, url)
	}

	initCtx, cancel := context.WithTimeout(ctx, s.initTimeout)
	defer cancel()

	type initResult struct {
		controller Controller
		err        error
	}
	resultCh := make(chan initResult, 1)
	go func() {
		controller, err := s.primary.NewController(initCtx, url)
		resultCh <- initResult{controller: controller, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err == nil {
			return result.controller, nil
		}
		if !isCDNIncompatibility(result.err) {
			return nil, result.err
		}
		s.logger.Warn("primary controller rejected by cdn, falling back",
			zap.String("url", url),
			zap.Error(result.err))
		return s.standard.NewController(ctx, url)
	case <-initCtx.Done():
		s.logger.Warn("primary controller init timed out, falling back",
			zap.String("url", url),
			zap.Duration("timeout", s.initTimeout),
			zap.Error(ErrInitTimeout))
		// A late primary result must not leak its controller.
		go func() {
			if result := <-resultCh; result.controller != nil {
				result.controller.Release()
			}
		}()
		return s.standard.NewController(ctx, url)
	}
}

func isCDNIncompatibility(err error) bool {
	text := strings.ToLower(err.Error())
	for _, marker := range cdnIncompatibilityMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
