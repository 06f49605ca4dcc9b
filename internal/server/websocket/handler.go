// Package websocket attaches WebSocket clients to the session manager.
//
// A client connects to the stream endpoint, optionally passing ?session= to
// resume an earlier session. The first frame it receives is an ack carrying
// its session ID. Client frames (subscribe, unsubscribe, pong) are read on
// the request goroutine and handed to the manager.
package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Maximum message size allowed from peer.
const maxMessageSize = 4096

// Sessions is the part of the session manager the handler drives.
type Sessions interface {
	Open(t connmgr.Transport) (*connmgr.Connection, error)
	Resume(session string, t connmgr.Transport) (*connmgr.Connection, error)
	Detach(session string, t connmgr.Transport, err error)
	HandleCommand(session string, cmd protocol.Envelope) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithWriteTimeout bounds every frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) { h.writeWait = d }
}

// WithCheckOrigin overrides the upgrade origin check.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// Handler upgrades requests and runs the read side of each connection.
type Handler struct {
	sessions  Sessions
	upgrader  websocket.Upgrader
	writeWait time.Duration
	logger    *zerolog.Logger
}

// NewHandler creates a Handler.
func NewHandler(sessions Sessions, logger *zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeWait: constants.DefaultWriteTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the request and blocks until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	t := NewTransport(conn, h.writeWait)

	var c *connmgr.Connection
	if session := r.URL.Query().Get("session"); session != "" {
		c, err = h.sessions.Resume(session, t)
	} else {
		c, err = h.sessions.Open(t)
	}
	if err != nil {
		if errors.IsNotFound(err) {
			_ = t.Send(protocol.Error("", err.Error(), time.Now()))
		}
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket session not attached")
		_ = t.Close()
		return
	}

	h.logger.Info().Str("conn_id", c.ID()).Str("remote", r.RemoteAddr).Msg("WebSocket client connected")
	h.readPump(c.ID(), conn, t)
}

// readPump feeds client frames to the manager until the socket fails.
func (h *Handler) readPump(session string, conn *websocket.Conn, t *Transport) {
	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("conn_id", session).Msg("WebSocket read error")
			}
			h.sessions.Detach(session, t, err)
			return
		}

		cmd, err := protocol.DecodeCommand(data)
		if err != nil {
			_ = t.Send(protocol.Error("", err.Error(), time.Now()))
			continue
		}
		if err := h.sessions.HandleCommand(session, cmd); err != nil {
			if errors.IsNotFound(err) || errors.IsClosed(err) {
				_ = t.Close()
				return
			}
			h.logger.Debug().Err(err).Str("conn_id", session).Str("type", string(cmd.Type)).Msg("Client command rejected")
		}
	}
}
