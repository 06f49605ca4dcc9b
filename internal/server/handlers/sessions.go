package handlers

import (
	"io"
	"net/http"

	"github.com/agentstation/swarmcast/internal/server/filter"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/internal/server/response"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// maxCommandBytes bounds a posted client command.
const maxCommandBytes = 4096

// HandleListSessions handles GET /api/v1/sessions.
// @Summary List sessions
// @Description Snapshot of live sessions, optionally filtered
// @Tags sessions
// @Produce json
// @Param state query string false "Comma-separated states"
// @Param live query bool false "Only sessions with (or without) a live transport"
// @Param topic query string false "Subscribed pattern"
// @Param max_quality query number false "Quality at or below"
// @Param min_queued query int false "Queued frames at or above"
// @Param sort query string false "quality, queued, rtt or created"
// @Param order query string false "asc or desc"
// @Param limit query int false "Page size (default 100)"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Response{data=[]connmgr.Info}
// @Security ApiKeyAuth
// @Router /api/v1/sessions [get].
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	response.OK(w, filter.ParseSessionFilter(r).Apply(h.sessions.Sessions()))
}

// HandleGetSession handles GET /api/v1/sessions/{id}.
// @Summary Get session
// @Description Live session snapshot, or the close reason of a recently closed one
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=object}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /api/v1/sessions/{id} [get].
func (h *Handlers) HandleGetSession(w http.ResponseWriter, _ *http.Request, id string) {
	if c, ok := h.sessions.Get(id); ok {
		response.OK(w, c.Info())
		return
	}
	if ts, ok := h.sessions.Tombstone(id); ok {
		response.OK(w, map[string]any{
			"id":        ts.ID,
			"state":     "closed",
			"reason":    ts.Reason,
			"closed_at": ts.ClosedAt,
		})
		return
	}
	response.ErrorFromType(w, errors.NewNotFoundError("session", id))
}

// HandleCloseSession handles DELETE /api/v1/sessions/{id}.
// @Summary Close session
// @Description Destroys a session, its queue and its room memberships
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=object}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /api/v1/sessions/{id} [delete].
func (h *Handlers) HandleCloseSession(w http.ResponseWriter, r *http.Request, id string) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "closed by client"
	}
	if err := h.sessions.Close(id, reason); err != nil {
		response.ErrorFromType(w, err)
		return
	}
	response.OK(w, map[string]any{"id": id, "state": "closed", "reason": reason})
}

// HandleSessionCommand handles POST /api/v1/sessions/{id}/commands.
// @Summary Send a client command
// @Description subscribe, unsubscribe or pong for SSE and polling clients
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param command body protocol.Envelope true "Client frame"
// @Success 202 {object} response.Response{data=object}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /api/v1/sessions/{id}/commands [post].
func (h *Handlers) HandleSessionCommand(w http.ResponseWriter, r *http.Request, id string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err != nil {
		response.BadRequest(w, "Command body too large or unreadable", err.Error())
		return
	}

	cmd, err := protocol.DecodeCommand(body)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}
	if err := h.sessions.HandleCommand(id, cmd); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	response.JSON(w, http.StatusAccepted, response.Success(map[string]any{
		"session": id,
		"type":    cmd.Type,
		"topic":   cmd.Topic,
	}))
}
