package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flatten"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/jobs"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/related"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	hookSubjectContextKey    = "cellar_hook_subject"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingAuthorizer    = errors.New("hook authorizer dependency required")
	errMissingHooks         = errors.New("content hooks dependency required")
	errMissingSyncer        = errors.New("catalog syncer dependency required")
	errMissingQueue         = errors.New("job queue dependency required")
	errMissingFlatReader    = errors.New("flat reader dependency required")
	errMissingRelatedReader = errors.New("related reader dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// HookAuthorizer validates the bearer token of a hook or admin request.
type HookAuthorizer interface {
	ValidateRequest(r *http.Request) (auth.HookClaims, error)
}

// ContentHooks turns content edits into queued jobs.
type ContentHooks interface {
	ContentChanged(ctx context.Context, collection, entityID string) (int, error)
	EnqueueRecomputeAll(ctx context.Context, lister jobs.FlatLister) (int, error)
}

// CatalogSyncer schedules a flatten for the whole catalog.
type CatalogSyncer interface {
	EnqueueAll(ctx context.Context, enqueuer flatten.Enqueuer) (int, error)
}

// JobQueue accepts flatten jobs and lists jobs by status.
type JobQueue interface {
	flatten.Enqueuer
	List(ctx context.Context, status string) ([]jobs.Job, error)
}

// FlatReader reads flat records.
type FlatReader interface {
	FindByOriginalID(ctx context.Context, originalVariantID string) (flat.Variant, error)
	ListOriginalIDs(ctx context.Context) ([]string, error)
}

// RelatedReader reads related sets.
type RelatedReader interface {
	Find(ctx context.Context, variantID string) (related.Set, error)
}

// Dependencies wires the HTTP handler. Feed is optional; without it the
// change stream is not served.
type Dependencies struct {
	Authorizer        HookAuthorizer
	Hooks             ContentHooks
	Syncer            CatalogSyncer
	Queue             JobQueue
	Flat              FlatReader
	Related           RelatedReader
	Feed              *ChangeFeed
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin router serving hooks, admin triggers and the
// read endpoints.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Authorizer == nil {
		return nil, errMissingAuthorizer
	}
	if deps.Hooks == nil {
		return nil, errMissingHooks
	}
	if deps.Syncer == nil {
		return nil, errMissingSyncer
	}
	if deps.Queue == nil {
		return nil, errMissingQueue
	}
	if deps.Flat == nil {
		return nil, errMissingFlatReader
	}
	if deps.Related == nil {
		return nil, errMissingRelatedReader
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		authorizer: deps.Authorizer,
		hooks:      deps.Hooks,
		syncer:     deps.Syncer,
		queue:      deps.Queue,
		flat:       deps.Flat,
		related:    deps.Related,
		feed:       deps.Feed,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/variants/:id/flat", handler.handleFlatVariant)
	router.GET("/variants/:id/related", handler.handleRelatedSet)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/hooks/content", handler.handleContentHook)
	protected.POST("/admin/sync", handler.handleSyncAll)
	protected.POST("/admin/related", handler.handleRecomputeAll)
	protected.GET("/admin/jobs", handler.handleListJobs)
	if deps.Feed != nil {
		protected.GET("/events/variants", handler.handleChangeStream)
	}

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	authorizer HookAuthorizer
	hooks      ContentHooks
	syncer     CatalogSyncer
	queue      JobQueue
	flat       FlatReader
	related    RelatedReader
	feed       *ChangeFeed
	heartbeat  time.Duration
	logger     *zap.Logger
}

type contentHookPayload struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

type enqueuedPayload struct {
	Enqueued int `json:"enqueued"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleContentHook(c *gin.Context) {
	var request contentHookPayload
	if err := c.ShouldBindJSON(&request); err != nil ||
		strings.TrimSpace(request.Collection) == "" || strings.TrimSpace(request.ID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	created, err := h.hooks.ContentChanged(c.Request.Context(), request.Collection, request.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownCollection) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_collection"})
			return
		}
		h.logger.Error("content hook failed",
			zap.String("collection", request.Collection),
			zap.String("entity_id", request.ID),
			zap.String("subject", c.GetString(hookSubjectContextKey)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	c.JSON(http.StatusAccepted, enqueuedPayload{Enqueued: created})
}

func (h *httpHandler) handleSyncAll(c *gin.Context) {
	created, err := h.syncer.EnqueueAll(c.Request.Context(), h.queue)
	if err != nil {
		h.logger.Error("catalog sync enqueue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	c.JSON(http.StatusAccepted, enqueuedPayload{Enqueued: created})
}

func (h *httpHandler) handleRecomputeAll(c *gin.Context) {
	created, err := h.hooks.EnqueueRecomputeAll(c.Request.Context(), h.flat)
	if err != nil {
		h.logger.Error("related recompute enqueue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	c.JSON(http.StatusAccepted, enqueuedPayload{Enqueued: created})
}

func (h *httpHandler) handleListJobs(c *gin.Context) {
	status := c.DefaultQuery("status", jobs.StatusFailed)
	switch status {
	case jobs.StatusQueued, jobs.StatusRunning, jobs.StatusDone, jobs.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	listed, err := h.queue.List(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("job listing failed", zap.String("status", status), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	if listed == nil {
		listed = []jobs.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"jobs": listed})
}

func (h *httpHandler) handleFlatVariant(c *gin.Context) {
	variantID := c.Param("id")
	variant, err := h.flat.FindByOriginalID(c.Request.Context(), variantID)
	if err != nil {
		if errors.Is(err, flat.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("flat variant lookup failed", zap.String("variant_id", variantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, variant)
}

func (h *httpHandler) handleRelatedSet(c *gin.Context) {
	variantID := c.Param("id")
	set, err := h.related.Find(c.Request.Context(), variantID)
	if err != nil {
		if errors.Is(err, related.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		h.logger.Error("related set lookup failed", zap.String("variant_id", variantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, set)
}

func (h *httpHandler) handleChangeStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.feed.Subscribe(ctx, strings.TrimSpace(c.Query("variant")))
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.Type, event)
			return true
		case <-ticker.C:
			c.SSEvent(eventHeartbeat, gin.H{"timestamp": time.Now().UTC()})
			return true
		}
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.authorizer.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
			return
		}
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(hookSubjectContextKey, claims.Subject)
	c.Next()
}
