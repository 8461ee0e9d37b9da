package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wonny/snowbot/internal/api/response"
	"github.com/wonny/snowbot/internal/infra/database/postgres"
	"github.com/wonny/snowbot/internal/service/pricesync"
)

// DBChecker reports database health
type DBChecker interface {
	Health(ctx context.Context) *postgres.HealthStatus
}

// QuoteCacheStats reports quote cache usage
type QuoteCacheStats interface {
	Stats() pricesync.CacheStats
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db        DBChecker
	quotes    QuoteCacheStats
	startTime time.Time
	version   string
	mode      string
}

// NewHealthHandler creates a new health handler. quotes may be nil.
func NewHealthHandler(db DBChecker, quotes QuoteCacheStats, version, mode string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		quotes:    quotes,
		startTime: time.Now(),
		version:   version,
		mode:      mode,
	}
}

// SimpleHealthResponse represents a liveness response
type SimpleHealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DetailedHealthResponse represents detailed health information
type DetailedHealthResponse struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version"`
	ExecutionMode string                 `json:"execution_mode"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Database      *postgres.HealthStatus `json:"database"`
	QuoteCache    *pricesync.CacheStats  `json:"quote_cache,omitempty"`
}

// Health returns liveness
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, SimpleHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// Detailed returns database health and process info.
// Responds 503 when the database is unhealthy.
// GET /api/health
func (h *HealthHandler) Detailed(c *gin.Context) {
	db := h.db.Health(c.Request.Context())

	resp := DetailedHealthResponse{
		Status:        db.Status,
		Version:       h.version,
		ExecutionMode: h.mode,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Database:      db,
	}
	if h.quotes != nil {
		stats := h.quotes.Stats()
		resp.QuoteCache = &stats
	}

	if db.Status == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, response.SuccessResponse{Data: resp})
		return
	}
	response.Success(c, resp)
}
