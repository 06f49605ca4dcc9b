package serve

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/server"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestApplyFlags(t *testing.T) {
	cmd := NewCommand(&application.Mock{}, server.DefaultConfig)
	require.NoError(t, cmd.ParseFlags([]string{
		"--port", "9999",
		"--batch-size", "10",
		"--cors-origins", "https://a.example,https://b.example",
		"--heartbeat-interval", "2s",
		"--backoff-jitter", "0.5",
		"--nats-url", "nats://localhost:4222",
	}))

	cfg := applyFlags(cmd.Flags(), server.DefaultConfig())
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, 10, cfg.Batching.MaxBatchSize)
	assert.Zero(t, cfg.Batching.MaxPending, "pending cap derives from the new batch size")
	assert.True(t, cfg.CORSEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 2*time.Second, cfg.Connections.HeartbeatInterval)
	assert.InDelta(t, 0.5, cfg.Connections.Backoff.JitterFraction, 1e-9)
	assert.True(t, cfg.Ingest.Enabled())

	def := server.DefaultConfig()
	assert.Equal(t, def.Host, cfg.Host, "unset flags keep the configured value")
	assert.Equal(t, def.ReplayRetention, cfg.ReplayRetention)
}

func TestApplyFlags_KeepsConfiguredValues(t *testing.T) {
	configured := server.DefaultConfig()
	configured.Port = 7000
	configured.Batching.MaxPending = 77

	cmd := NewCommand(&application.Mock{}, func() server.Config { return configured })
	require.NoError(t, cmd.ParseFlags(nil))

	cfg := applyFlags(cmd.Flags(), configured)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 77, cfg.Batching.MaxPending)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.AuthEnabled = true
	err := run(context.Background(), &application.Mock{}, cfg, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating server")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.RateLimit = 0

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- run(ctx, &application.Mock{}, cfg, out) }()

	addrRe := regexp.MustCompile(`listening on (\S+)`)
	var addr string
	require.Eventually(t, func() bool {
		m := addrRe.FindStringSubmatch(out.String())
		if m == nil {
			return false
		}
		addr = m[1]
		return true
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Contains(t, out.String(), "Server stopped")
}
