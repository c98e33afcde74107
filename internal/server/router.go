// Package server exposes a read-only inspection surface over the state
// layer for local development. It serves the current reducer snapshots as
// JSON; it is not part of the layer's UI contract.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/untreu2/divine-state/internal/curation"
	"github.com/untreu2/divine-state/internal/drafts"
	"github.com/untreu2/divine-state/internal/feed"
	"github.com/untreu2/divine-state/internal/playback"
	"github.com/untreu2/divine-state/internal/readiness"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	errMissingFeed      = errors.New("feed reducer dependency required")
	errMissingCuration  = errors.New("curation reducer dependency required")
	errMissingReadiness = errors.New("readiness gates dependency required")
)

// FeedStates reports the current feed snapshot.
type FeedStates interface {
	State() feed.State
}

// CurationStates reports the current curation snapshot.
type CurationStates interface {
	State() curation.State
}

// ReadinessStates reports the current gate snapshot.
type ReadinessStates interface {
	State() readiness.Snapshot
}

// ControllerSelector resolves the playback controller for a clip URL.
type ControllerSelector interface {
	Select(ctx context.Context, url string) (playback.Controller, error)
}

// Dependencies wires the probe's data sources. Drafts and Playback are
// optional; their routes answer 404 when absent.
type Dependencies struct {
	Feed      FeedStates
	Curation  CurationStates
	Readiness ReadinessStates
	Drafts    drafts.Store
	Playback  ControllerSelector
	Logger    *zap.Logger
}

// NewHTTPHandler builds the probe router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Feed == nil {
		return nil, errMissingFeed
	}
	if deps.Curation == nil {
		return nil, errMissingCuration
	}
	if deps.Readiness == nil {
		return nil, errMissingReadiness
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		feed:      deps.Feed,
		curation:  deps.Curation,
		readiness: deps.Readiness,
		drafts:    deps.Drafts,
		playback:  deps.Playback,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/state/feed", handler.handleFeedState)
	router.GET("/state/curation", handler.handleCurationState)
	router.GET("/state/readiness", handler.handleReadinessState)
	router.GET("/drafts", handler.handleDrafts)
	router.GET("/playback/controller", handler.handlePlaybackController)

	return router, nil
}

type httpHandler struct {
	feed      FeedStates
	curation  CurationStates
	readiness ReadinessStates
	drafts    drafts.Store
	playback  ControllerSelector
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleFeedState(c *gin.Context) {
	c.JSON(http.StatusOK, h.feed.State())
}

func (h *httpHandler) handleCurationState(c *gin.Context) {
	c.JSON(http.StatusOK, h.curation.State())
}

func (h *httpHandler) handleReadinessState(c *gin.Context) {
	c.JSON(http.StatusOK, h.readiness.State())
}

func (h *httpHandler) handleDrafts(c *gin.Context) {
	if h.drafts == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "draft_store_unavailable"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	listed, err := h.drafts.ListDrafts(ctx)
	if err != nil {
		h.logger.Error("draft listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "draft_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": listed})
}

func (h *httpHandler) handlePlaybackController(c *gin.Context) {
	if h.playback == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "playback_selector_unavailable"})
		return
	}
	mediaURL := c.Query("url")
	if mediaURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url_required"})
		return
	}
	controller, err := h.playback.Select(c.Request.Context(), mediaURL)
	if err != nil {
		h.logger.Error("controller selection failed",
			zap.String("url", mediaURL),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "controller_selection_failed"})
		return
	}
	defer controller.Release()
	c.JSON(http.StatusOK, gin.H{
		"engine":   controller.Engine(),
		"mediaUrl": controller.MediaURL(),
	})
}
