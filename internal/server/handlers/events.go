package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/internal/server/replay"
	"github.com/agentstation/swarmcast/internal/server/response"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
	"github.com/agentstation/swarmcast/pkg/logging"
)

// maxIngestBytes bounds one ingest request body.
const maxIngestBytes = 4 << 20

// IngestEvent is one producer event posted to the ingest endpoint.
type IngestEvent struct {
	Topic   string          `json:"topic"`
	Kind    events.Kind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Accepted reports the sequence assigned to an ingested event.
type Accepted struct {
	Topic    string `json:"topic"`
	Sequence uint64 `json:"sequence"`
}

// PollResponse answers GET /api/v1/events.
type PollResponse struct {
	*replay.Page
	Session *connmgr.PollResult `json:"session,omitempty"`
}

// HandleIngest handles POST /api/v1/events.
// @Summary Emit events
// @Description Accepts one event object or an array of them. Events are
// @Description processed in order; the first malformed event stops the request.
// @Tags events
// @Accept json
// @Produce json
// @Param events body []IngestEvent true "Events"
// @Success 201 {object} response.Response{data=[]Accepted}
// @Failure 400 {object} response.Response{error=response.Error}
// @Security ApiKeyAuth
// @Router /api/v1/events [post].
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		response.BadRequest(w, "Request body too large or unreadable", err.Error())
		return
	}

	batch, err := decodeIngest(body)
	if err != nil {
		response.ErrorFromType(w, errors.NewMalformedEventError("", "", "request body is not an event or an array of events", err))
		return
	}
	if len(batch) == 0 {
		response.BadRequest(w, "No events in request", "")
		return
	}

	accepted := make([]Accepted, 0, len(batch))
	for i, in := range batch {
		ev, err := h.broker.Publish(events.Event{Topic: in.Topic, Kind: in.Kind, Payload: in.Payload})
		if err != nil {
			logging.FromContext(r.Context()).Debug().Err(err).Int("index", i).Msg("Ingest rejected")
			if errors.IsMalformedEvent(err) {
				response.JSON(w, http.StatusBadRequest, response.Fail(
					"MALFORMED_EVENT",
					err.Error(),
					fmt.Sprintf("%d of %d events accepted before index %d", len(accepted), len(batch), i),
				))
				return
			}
			response.ErrorFromType(w, err)
			return
		}
		accepted = append(accepted, Accepted{Topic: ev.Topic, Sequence: ev.Sequence})
	}

	response.Created(w, accepted)
}

// decodeIngest accepts a single object or an array.
func decodeIngest(body []byte) ([]IngestEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []IngestEvent
		err := json.Unmarshal(trimmed, &batch)
		return batch, err
	}
	var one IngestEvent
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []IngestEvent{one}, nil
}

// HandlePoll handles GET /api/v1/events.
// @Summary Poll events
// @Description Catch-up and fallback polling. With topic, returns retained events
// @Description after since. With session, reports the session state and, when the
// @Description session has no live transport, drains its queued frames.
// @Tags events
// @Produce json
// @Param topic query string false "Topic to read"
// @Param since query int false "Last sequence already seen"
// @Param limit query int false "Maximum events to return"
// @Param session query string false "Session to report on and keep alive"
// @Param drain query bool false "Drain queued frames (default true without topic)"
// @Success 200 {object} response.Response{data=PollResponse}
// @Failure 400 {object} response.Response{error=response.Error}
// @Failure 404 {object} response.Response{error=response.Error}
// @Router /api/v1/events [get].
func (h *Handlers) HandlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topic := q.Get("topic")
	session := q.Get("session")
	if topic == "" && session == "" {
		response.BadRequest(w, "topic or session is required", "")
		return
	}

	since, err := parseUint(q.Get("since"), 0)
	if err != nil {
		response.ErrorFromType(w, errors.NewValidationError("since", q.Get("since"), "must be a non-negative integer"))
		return
	}
	limit, err := parseUint(q.Get("limit"), constants.DefaultPollLimit)
	if err != nil || limit == 0 {
		response.ErrorFromType(w, errors.NewValidationError("limit", q.Get("limit"), "must be a positive integer"))
		return
	}
	drain := topic == ""
	if v := q.Get("drain"); v != "" {
		if drain, err = strconv.ParseBool(v); err != nil {
			response.ErrorFromType(w, errors.NewValidationError("drain", v, "must be a boolean"))
			return
		}
	}

	var resp PollResponse
	if topic != "" {
		if err := events.ValidateTopic(topic); err != nil {
			response.ErrorFromType(w, err)
			return
		}
		page := h.replay.Since(topic, since, int(min(limit, constants.MaxPollLimit)))
		resp.Page = &page
	}
	if session != "" {
		res, err := h.sessions.Poll(session, drain)
		if err != nil {
			response.ErrorFromType(w, err)
			return
		}
		resp.Session = &res
		logging.FromContext(r.Context()).Debug().
			Str("conn_id", session).
			Str("state", res.State.String()).
			Int("events", frameCount(res.Frames)).
			Msg("Session polled")
	}

	response.OK(w, resp)
}

func parseUint(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// frameCount counts carried events; control frames count once.
func frameCount(frames []protocol.Envelope) int {
	n := 0
	for _, f := range frames {
		n += max(1, f.EventCount())
	}
	return n
}
