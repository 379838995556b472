package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Semprini/data-products/ducklake-init/internal/bootstrap"
)

// statusService is the subset of *bootstrap.Driver the handlers read.
type statusService interface {
	State() bootstrap.State
	IsReady() bool
	Result() *bootstrap.Result
	DeepHealth(ctx context.Context) map[string]bootstrap.ProbeResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	status statusService
}

// Health handles GET /health. It is the liveness probe and always answers 200.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// Ready handles GET /ready: 200 once the lake is attached, 503 before that
// and after a failed bootstrap.
func (h *Handler) Ready(c *gin.Context) {
	if h.status.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true, "state": h.status.State()})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "state": h.status.State()})
}

// Status handles GET /status with the state and the per-phase results.
func (h *Handler) Status(c *gin.Context) {
	body := gin.H{"state": h.status.State()}
	if r := h.status.Result(); r != nil {
		body["status"] = r.Status
		body["phases"] = r.Phases
	} else {
		body["status"] = "pending"
		body["phases"] = []bootstrap.PhaseResult{}
	}
	c.JSON(http.StatusOK, body)
}

// DeepHealth handles GET /health/deep. Every dependency is probed; any
// failure, including an open breaker, turns the answer into 503.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.status.DeepHealth(c.Request.Context())

	status, code := "healthy", http.StatusOK
	for _, p := range probes {
		if !p.OK {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}
