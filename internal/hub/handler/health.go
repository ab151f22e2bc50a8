package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/threadring/ringhub/internal/health"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checker *health.Checker
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checker *health.Checker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Register mounts the health routes on the given engine.
func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/health/live", h.Live)
	r.GET("/health/ready", h.Ready)
}

// Health handles GET /health. Always 200; the body carries per-dependency
// detail.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.checker.Readiness(c.Request.Context()))
}

// Live handles GET /health/live. The process is up.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready. 503 until every dependency answers.
func (h *HealthHandler) Ready(c *gin.Context) {
	report := h.checker.Readiness(c.Request.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
