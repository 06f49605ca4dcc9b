package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/internal/backoff"
	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/internal/server/rooms"
)

func newTestServer(t *testing.T) (*httptest.Server, *connmgr.Manager) {
	t.Helper()
	logger := zerolog.Nop()
	mgr := connmgr.New(connmgr.Config{
		HeartbeatInterval:    time.Second,
		HeartbeatWarnTimeout: 5 * time.Second,
		HeartbeatFailTimeout: 10 * time.Second,
		MaxIdleDisconnected:  time.Minute,
		Backoff:              backoff.Policy{Base: time.Minute, Max: time.Minute, FallbackThreshold: 3},
	}, rooms.New(), &logger)

	srv := httptest.NewServer(NewHandler(mgr, &logger, WithWriteTimeout(time.Second)))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	return srv, mgr
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func TestHandler_HandshakeSubscribeAndDeliver(t *testing.T) {
	srv, mgr := newTestServer(t)
	conn := dial(t, srv, "")

	ack := readFrame(t, conn)
	require.Equal(t, protocol.TypeAck, ack.Type)
	require.NotEmpty(t, ack.Session)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "topic": "agent-1"}))
	sub := readFrame(t, conn)
	assert.Equal(t, protocol.TypeAck, sub.Type)
	assert.Equal(t, "agent-1", sub.Topic)

	mgr.Deliver(events.NewBatch(events.Event{
		Topic:     "agent-1",
		Kind:      events.StatusChanged,
		Sequence:  7,
		Payload:   []byte(`{"status":"idle"}`),
		Timestamp: time.Now(),
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeBatch, frame.Type)
	require.Len(t, frame.Events, 1)
	assert.Equal(t, uint64(7), frame.Events[0].Sequence)
}

func TestHandler_MalformedCommand(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"batch"}`)))
	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
}

func TestHandler_ResumeSession(t *testing.T) {
	srv, mgr := newTestServer(t)
	first := dial(t, srv, "")
	ack := readFrame(t, first)

	require.NoError(t, first.Close())
	c, ok := mgr.Get(ack.Session)
	require.True(t, ok)
	require.Eventually(t, func() bool { return c.State() == connmgr.Disconnected }, 2*time.Second, 5*time.Millisecond)

	second := dial(t, srv, "?session="+ack.Session)
	resumed := readFrame(t, second)
	assert.Equal(t, protocol.TypeAck, resumed.Type)
	assert.Equal(t, ack.Session, resumed.Session)
	assert.Equal(t, connmgr.Connected, c.State())
}

func TestHandler_ResumeUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "?session=unknown")

	frame := readFrame(t, conn)
	assert.Equal(t, protocol.TypeError, frame.Type)
	assert.Contains(t, frame.Reason, "not found")
}
