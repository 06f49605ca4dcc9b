package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// closeGrace bounds the close frame written on Close.
const closeGrace = 100 * time.Millisecond

// Transport writes envelopes to one WebSocket connection.
type Transport struct {
	conn      *websocket.Conn
	writeWait time.Duration

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewTransport wraps conn. Every write is bounded by writeWait.
func NewTransport(conn *websocket.Conn, writeWait time.Duration) *Transport {
	return &Transport{conn: conn, writeWait: writeWait}
}

// Send writes one envelope as a text frame.
func (t *Transport) Send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.ErrClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and drops the connection. A Send blocked on a
// slow peer returns once the socket is closed.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = t.conn.Close()

		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
	})
	return err
}

// RemoteAddr returns the peer address.
func (t *Transport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
