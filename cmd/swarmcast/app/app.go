// Package app provides the application context for the swarmcast CLI.
// It centralizes configuration, logging and client construction so that
// commands depend only on the application.Application interface.
package app

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/transport"
	"github.com/agentstation/swarmcast/pkg/client"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// App represents the swarmcast application with all its dependencies.
type App struct {
	// Version information
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger
}

// New creates a new App instance with the given version information.
// The app is initialized with the loaded configuration, which can be
// replaced using functional options.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.NewConfigError("config", "load failed", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// ServerURL returns the server client commands talk to.
func (a *App) ServerURL() string {
	return a.config.ServerURL
}

// APIKey returns the key client commands present.
func (a *App) APIKey() string {
	return a.config.APIKey
}

// Client builds a client for ServerURL. The server's path prefix and auth
// header are taken from the config so a local config file serves both sides.
func (a *App) Client(opts ...client.Option) (*client.Client, error) {
	base := []client.Option{
		client.WithLogger(a.logger),
		client.WithPathPrefix(a.config.Server.PathPrefix),
	}
	if a.config.APIKey != "" {
		header := a.config.Server.AuthHeader
		if header == "" {
			header = "X-API-Key"
		}
		base = append(base, client.WithAuth(&transport.HeaderAuth{Header: header}, a.config.APIKey))
	}
	return client.New(a.config.ServerURL, append(base, opts...)...)
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// Ensure App implements application.Application at compile time.
var _ application.Application = (*App)(nil)
