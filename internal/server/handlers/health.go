package handlers

import (
	"net/http"

	"github.com/agentstation/swarmcast/internal/server/response"
)

// HandleHealth handles GET /api/v1/health.
// @Summary Health check
// @Description Health check endpoint (liveness probe)
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Router /api/v1/health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "swarmcast",
		"version": h.version,
	})
}

// HandleReady handles GET /api/v1/ready.
// @Summary Readiness check
// @Description Ready while the batching engine accepts events
// @Tags health
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if h.engine.Closed() {
		response.ServiceUnavailable(w, "Batching engine is shut down")
		return
	}

	stats := h.sessions.Stats()
	response.OK(w, map[string]any{
		"status":      "ready",
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
		"min_quality": stats.MinQuality,
	})
}
