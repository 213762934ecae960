package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/indexing"
	"github.com/AksahyDwivedi/pharmacy/internal/infrastructure/storage/postgres"
)

// IndexStats reports the document count of every open search index.
type IndexStats interface {
	Stats() map[string]uint64
}

// HealthConfig holds the components inspected by the health endpoints.
// Pool is nil when the primary store runs in memory.
type HealthConfig struct {
	Pool    *postgres.Pool
	Indexes IndexStats
	Monitor *indexing.Monitor
	// Pending returns the number of queued mirror tasks; optional.
	Pending func() int
	Version string
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	cfg HealthConfig
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(cfg HealthConfig) *HealthHandler {
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	return &HealthHandler{cfg: cfg}
}

// Live handles liveness probe (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness probe (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{"database": "memory"}

	if h.cfg.Pool != nil {
		if err := h.cfg.Pool.Ping(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"checks": checks,
			})
			return
		}
		checks["database"] = "healthy"
	}

	body := gin.H{
		"status": "ok",
		"checks": checks,
	}
	if h.cfg.Indexes != nil {
		body["indexes"] = h.cfg.Indexes.Stats()
	}
	c.JSON(http.StatusOK, body)
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     "pharmacy",
		"version": h.cfg.Version,
	}

	if h.cfg.Pool != nil {
		body["database"] = h.cfg.Pool.Stats()
	}

	mirror := gin.H{}
	if h.cfg.Monitor != nil {
		mirror["stats"] = h.cfg.Monitor.Stats()
	}
	if h.cfg.Pending != nil {
		mirror["pending"] = h.cfg.Pending()
	}
	body["mirror"] = mirror

	if h.cfg.Indexes != nil {
		body["indexes"] = h.cfg.Indexes.Stats()
	}

	c.JSON(http.StatusOK, body)
}
