package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/agentstation/swarmcast/internal/server/response"
)

// HandleStats handles GET /api/v1/stats.
// @Summary Server statistics
// @Description Producer, batching, session and replay counters
// @Tags admin
// @Produce json
// @Success 200 {object} response.Response{data=object}
// @Security ApiKeyAuth
// @Router /api/v1/stats [get].
func (h *Handlers) HandleStats(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response.OK(w, map[string]any{
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"producer":       h.broker.Stats(),
		"batching":       h.engine.Stats(),
		"sessions":       h.sessions.Stats(),
		"replay":         h.replay.Stats(),
		"patterns":       h.rooms.Patterns(),
		"runtime": map[string]any{
			"goroutines":   runtime.NumGoroutine(),
			"heap_alloc":   mem.HeapAlloc,
			"heap_objects": mem.HeapObjects,
			"num_gc":       mem.NumGC,
		},
	})
}
