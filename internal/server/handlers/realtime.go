package handlers

import "net/http"

// HandleWebSocket handles WebSocket connections at /api/v1/ws.
// @Summary WebSocket stream
// @Description Bidirectional session stream; pass session to resume
// @Tags stream
// @Param session query string false "Session to resume"
// @Success 101 "Switching Protocols"
// @Router /api/v1/ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.ws.ServeHTTP(w, r)
}

// HandleSSE handles Server-Sent Events at /api/v1/stream.
// @Summary SSE stream
// @Description One-way session stream; commands go to the session command endpoint
// @Tags stream
// @Produce text/event-stream
// @Param session query string false "Session to resume"
// @Param topic query []string false "Patterns to subscribe on connect"
// @Success 200 "Event stream"
// @Router /api/v1/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sse.ServeHTTP(w, r)
}
