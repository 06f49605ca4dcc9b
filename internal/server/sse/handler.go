// Package sse streams session frames as Server-Sent Events.
//
// SSE is one-way, so subscriptions are given as repeated ?topic= parameters
// on connect, and later changes and pongs go through the session command
// endpoint. ?session= resumes an earlier session.
package sse

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Sessions is the part of the session manager the handler drives.
type Sessions interface {
	Open(t connmgr.Transport) (*connmgr.Connection, error)
	Resume(session string, t connmgr.Transport) (*connmgr.Connection, error)
	Detach(session string, t connmgr.Transport, err error)
	HandleCommand(session string, cmd protocol.Envelope) error
}

// Handler serves the SSE stream endpoint.
type Handler struct {
	sessions  Sessions
	writeWait time.Duration
	logger    *zerolog.Logger
}

// NewHandler creates a Handler. A zero writeWait uses the default.
func NewHandler(sessions Sessions, logger *zerolog.Logger, writeWait time.Duration) *Handler {
	if writeWait <= 0 {
		writeWait = constants.DefaultWriteTimeout
	}
	return &Handler{sessions: sessions, writeWait: writeWait, logger: logger}
}

// ServeHTTP holds the response open until the session detaches the
// transport or the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	t := newTransport(w, r, h.writeWait)
	defer t.finish()

	var (
		c   *connmgr.Connection
		err error
	)
	if session := r.URL.Query().Get("session"); session != "" {
		c, err = h.sessions.Resume(session, t)
	} else {
		c, err = h.sessions.Open(t)
	}
	if err != nil {
		if errors.IsNotFound(err) {
			_ = t.Send(protocol.Error("", err.Error(), time.Now()))
		}
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("SSE session not attached")
		return
	}

	for _, topic := range r.URL.Query()["topic"] {
		if err := h.sessions.HandleCommand(c.ID(), protocol.Envelope{Type: protocol.TypeSubscribe, Topic: topic}); err != nil {
			h.logger.Debug().Err(err).Str("conn_id", c.ID()).Str("pattern", topic).Msg("SSE subscribe rejected")
		}
	}

	h.logger.Info().Str("conn_id", c.ID()).Str("remote", r.RemoteAddr).Msg("SSE client connected")

	select {
	case <-t.done:
	case <-r.Context().Done():
		t.finish()
		h.sessions.Detach(c.ID(), t, r.Context().Err())
	}
}
