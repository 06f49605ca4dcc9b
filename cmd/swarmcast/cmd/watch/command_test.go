package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/server"
	"github.com/agentstation/swarmcast/pkg/client"
)

func event(seq uint64) client.Event {
	return client.Event{
		Topic:     "agent-1",
		Kind:      "agent.status_changed",
		Sequence:  seq,
		Payload:   json.RawMessage(`{"to":"busy"}`),
		Timestamp: time.Now(),
	}
}

func TestWatcher_PlainAndLimit(t *testing.T) {
	var out bytes.Buffer
	cancelled := false
	w := &watcher{out: &out, limit: 2, cancel: func() { cancelled = true }}

	w.event(event(1))
	assert.False(t, cancelled)
	w.event(event(2))
	assert.True(t, cancelled)
	w.event(event(3))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "agent-1")
	assert.Contains(t, lines[1], "#2")
}

func TestWatcher_JSON(t *testing.T) {
	var out bytes.Buffer
	w := &watcher{out: &out, json: true, cancel: func() {}}
	w.event(event(5))
	w.gap(client.Gap{Topic: "agent-1", From: 3, To: 4, Recovered: 2})

	dec := json.NewDecoder(&out)
	var e client.Event
	require.NoError(t, dec.Decode(&e))
	assert.Equal(t, uint64(5), e.Sequence)
	var g map[string]any
	require.NoError(t, dec.Decode(&g))
	assert.Equal(t, "agent-1", g["gap"])
}

func TestWatcher_TableFlush(t *testing.T) {
	var out bytes.Buffer
	w := &watcher{out: &out, table: true, cancel: func() {}}
	w.event(event(1))
	w.gap(client.Gap{Topic: "agent-1", From: 2, To: 2, Recovered: 1})
	assert.Empty(t, out.String(), "table mode prints on flush")

	require.NoError(t, w.flush())
	assert.Contains(t, out.String(), "agent.status_changed")
	assert.Contains(t, out.String(), "recovered 1")
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.RateLimit = 0
	cfg.Batching.MaxBatchDelay = 10 * time.Millisecond

	srv, err := server.New(&application.Mock{}, cfg)
	require.NoError(t, err)
	srv.Start()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	app := &application.Mock{
		ServerURLFunc:    func() string { return ts.URL },
		OutputFormatFunc: func() string { return "table" },
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, app, options{topics: []string{"agent-*"}, limit: 2, pollInterval: time.Second}, &out)
	}()

	require.Eventually(t, func() bool {
		for _, s := range srv.Sessions().Sessions() {
			if len(s.Topics) > 0 {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Swarm().AgentStatus("1", "idle", "busy"))
	require.NoError(t, srv.Swarm().AgentStatus("1", "busy", "idle"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("watch did not stop at its limit")
	}
	assert.Contains(t, out.String(), "agent-1")
	assert.Contains(t, out.String(), "#2")
}
