package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/internal/server"
	"github.com/agentstation/swarmcast/pkg/constants"
)

func testApp(t *testing.T) *App {
	t.Helper()
	logger := zerolog.Nop()
	config := &Config{
		LogFormat: "json",
		LogOutput: "discard",
		ServerURL: constants.DefaultServerURL,
		Server:    server.DefaultConfig(),
	}
	a, err := New("1.2.3", "abc123", "2026-10-01", "test", WithConfig(config), WithLogger(&logger))
	require.NoError(t, err)
	return a
}

func execute(t *testing.T, a *App, args ...string) string {
	t.Helper()
	root := a.createRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

// TestApp_New verifies version info and options.
func TestApp_New(t *testing.T) {
	a := testApp(t)
	assert.Equal(t, "1.2.3", a.Version())
	assert.Equal(t, "abc123", a.Commit())
	assert.Equal(t, "2026-10-01", a.Date())
	assert.Equal(t, "test", a.BuiltBy())
	assert.Equal(t, constants.DefaultServerURL, a.ServerURL())
	assert.NotNil(t, a.Logger())
	assert.Empty(t, a.OutputFormat())
}

// TestApp_Client verifies clients are built from the config.
func TestApp_Client(t *testing.T) {
	a := testApp(t)
	c, err := a.Client()
	require.NoError(t, err)
	assert.NotNil(t, c)

	a.config.APIKey = "secret"
	_, err = a.Client()
	require.NoError(t, err)

	a.config.ServerURL = "not a url"
	_, err = a.Client()
	assert.Error(t, err)
}

// TestVersionCommand verifies short and verbose version output.
func TestVersionCommand(t *testing.T) {
	out := execute(t, testApp(t), "version")
	assert.Equal(t, "swarmcast 1.2.3\n", out)

	out = execute(t, testApp(t), "version", "-v")
	assert.Contains(t, out, "commit:   abc123")
}

// TestConfigCommand verifies the effective configuration is printed as
// YAML without secrets.
func TestConfigCommand(t *testing.T) {
	a := testApp(t)
	a.config.APIKey = "secret"
	a.config.Server.APIKey = "secret"

	out := execute(t, a, "config")
	assert.Contains(t, out, "server_url: http://localhost:8080")
	assert.Contains(t, out, "max_batch_delay: 100ms")
	assert.NotContains(t, out, "secret")

	out = execute(t, testApp(t), "config", "-o", "json")
	assert.Contains(t, out, `"server_url"`)
}

// TestSetupCommand_ConfigFlag verifies --config reloads from that file and
// flags still win.
func TestSetupCommand_ConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarmcast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7171\n"), constants.FilePermissions))

	a := testApp(t)
	out := execute(t, a, "config", "--config", path, "--api-key", "k", "--log-level", "error")
	assert.Contains(t, out, "port: 7171")
	assert.Equal(t, "k", a.APIKey())
	assert.Equal(t, "k", a.config.Server.APIKey)
	assert.Equal(t, zerolog.ErrorLevel, a.Logger().GetLevel())
}

// TestRootCommand_Groups verifies every command is registered.
func TestRootCommand_Groups(t *testing.T) {
	root := testApp(t).createRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "config", "emit", "watch", "sessions", "version", "completion"} {
		assert.True(t, names[want], want)
	}
}
