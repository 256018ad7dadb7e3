package handlers

import (
	"context"
	"net/http"
	"time"

	"portfolio_backend/internal/catalog"
	"portfolio_backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// Pinger is implemented by the ledger store and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BacklogCounter reports how many verified charges still wait for a commit.
type BacklogCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// HealthDeps are the components the probes look at. Cache may be nil when
// Redis is not configured.
type HealthDeps struct {
	Store   Pinger
	Cache   Pinger
	Backlog BacklogCounter
	Catalog *catalog.Catalog
	Version string
}

type HealthHandler struct {
	deps      HealthDeps
	startTime time.Time
}

func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{deps: deps, startTime: time.Now()}
}

// ReadinessResponse is served on /readyz.
type ReadinessResponse struct {
	Status                 string `json:"status"`
	Version                string `json:"version,omitempty"`
	Uptime                 string `json:"uptime"`
	Store                  string `json:"store"`
	Cache                  string `json:"cache"`
	PendingReconciliations int    `json:"pending_reconciliations"`
	CatalogItems           int    `json:"catalog_items"`
	CreditPacks            int    `json:"credit_packs"`
}

// Liveness only says the process is serving.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness fails when the ledger store is unreachable. A missing or broken
// cache only degrades: reads fall through to the store and rate limits fail open.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := ReadinessResponse{
		Status:                 "healthy",
		Version:                h.deps.Version,
		Uptime:                 time.Since(h.startTime).Round(time.Second).String(),
		Store:                  "healthy",
		Cache:                  "disabled",
		PendingReconciliations: -1,
	}
	if h.deps.Catalog != nil {
		resp.CatalogItems = len(h.deps.Catalog.Items())
		resp.CreditPacks = len(h.deps.Catalog.Packs())
	}

	if err := h.deps.Store.Ping(ctx); err != nil {
		resp.Store = "unhealthy: " + err.Error()
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(ctx); err != nil {
			resp.Cache = "unhealthy: " + err.Error()
			resp.Status = "degraded"
		} else {
			resp.Cache = "healthy"
		}
	}

	if h.deps.Backlog != nil {
		n, err := h.deps.Backlog.CountPending(ctx)
		if err != nil {
			logger.WithContext(ctx).Warn("readiness: count pending reconciliations", "error", err)
		} else {
			resp.PendingReconciliations = n
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Health is the short form for load balancers.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.deps.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "ledger store unavailable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.deps.Version,
	})
}
