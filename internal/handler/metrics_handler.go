package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/pkg/response"
)

type metricsSource interface {
	Handler() http.Handler
	Snapshot() models.SystemMetrics
}

// DatabaseStatusFunc reports "connected" or "disconnected".
type DatabaseStatusFunc func(ctx context.Context) string

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  metricsSource
	dbStatus DatabaseStatusFunc
	started  time.Time
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics metricsSource, dbStatus DatabaseStatusFunc) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, dbStatus: dbStatus, started: time.Now()}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// System godoc
// @Summary Runtime metrics snapshot
// @Tags System
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /system/metrics [get]
func (h *MetricsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Health reports liveness together with the database status.
func (h *MetricsHandler) Health(c *gin.Context) {
	database := "unknown"
	if h.dbStatus != nil {
		database = h.dbStatus(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"database":  database,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// Ready fails while the database is unreachable.
func (h *MetricsHandler) Ready(c *gin.Context) {
	if h.dbStatus != nil && h.dbStatus(c.Request.Context()) != "connected" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
