package server

import (
	"time"

	"github.com/agentstation/swarmcast/internal/ingest"
	"github.com/agentstation/swarmcast/internal/server/batching"
	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// API settings
	PathPrefix string `yaml:"path_prefix"`

	// CORS settings
	CORSEnabled bool     `yaml:"cors_enabled"`
	CORSOrigins []string `yaml:"cors_origins"`

	// Authentication settings
	AuthEnabled bool   `yaml:"auth_enabled"`
	AuthHeader  string `yaml:"auth_header"`
	APIKey      string `json:"-" yaml:"-"`

	// Requests per minute per IP (0 to disable). Streams count once, on connect.
	RateLimit int `yaml:"rate_limit"`

	// HTTP timeouts. There is no server-wide write timeout because streams
	// are long-lived; each frame write has its own deadline instead.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// Features
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Distribution
	Batching        batching.Config `yaml:"batching"`
	Connections     connmgr.Config  `yaml:"connections"`
	ReplayRetention int             `yaml:"replay_retention"`
	// AlertInterval spaces queue overflow alerts on the system topic.
	AlertInterval time.Duration `yaml:"alert_interval"`

	// Optional NATS producer ingest
	Ingest ingest.Config `yaml:"ingest"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            8080,
		PathPrefix:      constants.DefaultPathPrefix,
		CORSEnabled:     false,
		CORSOrigins:     []string{},
		AuthEnabled:     false,
		AuthHeader:      "X-API-Key",
		RateLimit:       constants.DefaultRateLimit,
		ReadTimeout:     10 * time.Second,
		IdleTimeout:     120 * time.Second,
		MetricsEnabled:  true,
		Batching:        batching.DefaultConfig(),
		Connections:     connmgr.DefaultConfig(),
		ReplayRetention: constants.DefaultReplayRetention,
		AlertInterval:   10 * time.Second,
		Ingest:          ingest.DefaultConfig(),
	}
}

// Validate checks the configuration before the server is built.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.NewConfigError("server", "port must be within 0-65535", nil)
	}
	if c.RateLimit < 0 {
		return errors.NewConfigError("server", "rate_limit must not be negative", nil)
	}
	if c.AuthEnabled && c.APIKey == "" {
		return errors.NewConfigError("server", "auth is enabled but no API key is set", nil)
	}
	if c.ReplayRetention < 1 {
		return errors.NewConfigError("server", "replay_retention must be at least 1", nil)
	}
	if err := c.Batching.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	return c.Connections.Validate()
}
