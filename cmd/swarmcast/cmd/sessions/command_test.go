package sessions

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/pkg/errors"
)

const sessionList = `{"data":[{"id":"s1","state":"connected","topics":["agent-*"],
"queue":{"len":1,"items":3,"capacity":1000},"quality":0.9,"rtt_ms":12.5}],"error":null}`

func fakeServer(t *testing.T, handler http.HandlerFunc) *application.Mock {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &application.Mock{ServerURLFunc: func() string { return srv.URL }}
}

func execute(t *testing.T, app application.Application, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionsCommand_Table(t *testing.T) {
	var gotQuery string
	app := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sessions", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sessionList))
	})

	out, err := execute(t, app, "--state", "connected,degraded", "--sort", "quality", "--limit", "5", "--overflowed")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "12.5ms")
	assert.Contains(t, gotQuery, "state=connected%2Cdegraded")
	assert.Contains(t, gotQuery, "sort=quality")
	assert.Contains(t, gotQuery, "limit=5")
	assert.Contains(t, gotQuery, "overflowed=true")
}

func TestSessionsCommand_JSON(t *testing.T) {
	app := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sessionList))
	})
	app.OutputFormatFunc = func() string { return "json" }

	out, err := execute(t, app)
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "s1"`)
}

func TestSessionsCommand_Empty(t *testing.T) {
	app := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"error":null}`))
	})
	out, err := execute(t, app)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions")
}

func TestCloseCommand(t *testing.T) {
	var method, path, reason string
	app := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		method, path, reason = r.Method, r.URL.Path, r.URL.Query().Get("reason")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"closed":"s1"},"error":null}`))
	})

	out, err := execute(t, app, "close", "s1", "--reason", "maintenance")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/api/v1/sessions/s1", path)
	assert.Equal(t, "maintenance", reason)
	assert.Contains(t, out, "closed")
}

func TestCloseCommand_NotFound(t *testing.T) {
	app := fakeServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"data":null,"error":{"code":"NOT_FOUND","message":"session not found"}}`))
	})
	_, err := execute(t, app, "close", "nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestStatsCommand(t *testing.T) {
	app := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"sessions":{"total":2}},"error":null}`))
	})
	out, err := execute(t, app, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "total: 2")
}
