package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/swarmcast/internal/server"
	"github.com/agentstation/swarmcast/pkg/constants"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool   `json:"verbose" yaml:"verbose"`
	Quiet   bool   `json:"quiet" yaml:"quiet"`
	NoColor bool   `json:"no_color" yaml:"no_color"`
	Format  string `json:"format" yaml:"format"`

	// Config file
	ConfigFile string `json:"-" yaml:"-"`

	// LogLevel is the --log-level flag; EnvLogLevel comes from the
	// environment or config file and yields to -v/-q.
	LogLevel    string `json:"-" yaml:"-"`
	EnvLogLevel string `json:"log_level" yaml:"log_level"`
	LogFormat   string `json:"log_format" yaml:"log_format"`
	LogOutput   string `json:"log_output" yaml:"log_output"`

	// Client commands
	ServerURL string `json:"server_url" yaml:"server_url"`
	APIKey    string `json:"-" yaml:"-"`

	// Server is the configuration `swarmcast serve` starts from.
	Server server.Config `json:"server" yaml:"server"`
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (handled by cobra)
//  2. SWARMCAST_* environment variables
//  3. .env files
//  4. Config file (path, or ~/.swarmcast.yaml)
//  5. Defaults
func LoadConfig(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindConventionalEnv(v)

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(constants.ConfigName)
		// A missing default config file is fine.
		_ = v.ReadInConfig()
	}

	config := &Config{
		Verbose:     v.GetBool("verbose"),
		Quiet:       v.GetBool("quiet"),
		NoColor:     v.GetBool("no_color"),
		Format:      v.GetString("format"),
		ConfigFile:  v.ConfigFileUsed(),
		EnvLogLevel: v.GetString("log_level"),
		LogFormat:   stringOr(v, "log_format", "auto"),
		LogOutput:   stringOr(v, "log_output", "stderr"),
		ServerURL:   stringOr(v, "server_url", constants.DefaultServerURL),
		APIKey:      v.GetString("api_key"),
		Server:      server.DefaultConfig(),
	}
	loadServerConfig(v, &config.Server)
	config.Server.APIKey = config.APIKey

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	c.LogLevel = logLevel
}

// loadServerConfig overlays every set server key onto cfg.
func loadServerConfig(v *viper.Viper, cfg *server.Config) {
	setString(v, "server.host", &cfg.Host)
	setInt(v, "server.port", &cfg.Port)
	setString(v, "server.path_prefix", &cfg.PathPrefix)
	setBool(v, "server.cors_enabled", &cfg.CORSEnabled)
	setStrings(v, "server.cors_origins", &cfg.CORSOrigins)
	setBool(v, "server.auth_enabled", &cfg.AuthEnabled)
	setString(v, "server.auth_header", &cfg.AuthHeader)
	setInt(v, "server.rate_limit", &cfg.RateLimit)
	setDuration(v, "server.read_timeout", &cfg.ReadTimeout)
	setDuration(v, "server.idle_timeout", &cfg.IdleTimeout)
	setBool(v, "server.metrics_enabled", &cfg.MetricsEnabled)
	setInt(v, "server.replay_retention", &cfg.ReplayRetention)
	setDuration(v, "server.alert_interval", &cfg.AlertInterval)

	b := &cfg.Batching
	setInt(v, "server.batching.max_batch_size", &b.MaxBatchSize)
	setDuration(v, "server.batching.max_batch_delay", &b.MaxBatchDelay)
	setInt(v, "server.batching.max_pending", &b.MaxPending)
	setInt(v, "server.batching.lanes", &b.Lanes)
	setInt(v, "server.batching.lane_buffer", &b.LaneBuffer)

	c := &cfg.Connections
	setDuration(v, "server.connections.heartbeat_interval", &c.HeartbeatInterval)
	setDuration(v, "server.connections.heartbeat_warn_timeout", &c.HeartbeatWarnTimeout)
	setDuration(v, "server.connections.heartbeat_fail_timeout", &c.HeartbeatFailTimeout)
	setDuration(v, "server.connections.max_idle_disconnected", &c.MaxIdleDisconnected)
	setDuration(v, "server.connections.write_timeout", &c.WriteTimeout)
	setInt(v, "server.connections.queue_capacity", &c.QueueCapacity)
	setDuration(v, "server.connections.backoff.base", &c.Backoff.Base)
	setDuration(v, "server.connections.backoff.max", &c.Backoff.Max)
	setFloat(v, "server.connections.backoff.jitter_fraction", &c.Backoff.JitterFraction)
	setInt(v, "server.connections.backoff.fallback_threshold", &c.Backoff.FallbackThreshold)

	n := &cfg.Ingest
	setString(v, "server.ingest.url", &n.URL)
	setString(v, "server.ingest.subject", &n.Subject)
	setString(v, "server.ingest.queue", &n.Queue)
	setString(v, "server.ingest.name", &n.Name)
	setString(v, "server.ingest.token", &n.Token)
	setDuration(v, "server.ingest.reconnect_wait", &n.ReconnectWait)
	setDuration(v, "server.ingest.drain_timeout", &n.DrainTimeout)
}

// loadEnvFiles loads environment variables from .env files.
// .env.local is loaded first so its values win; godotenv never overrides.
func loadEnvFiles() {
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// bindConventionalEnv lets the unprefixed variables other tools use feed
// the same keys. The prefixed name is listed first and wins.
func bindConventionalEnv(v *viper.Viper) {
	for key, env := range map[string]string{
		"no_color":          "NO_COLOR",
		"log_level":         "LOG_LEVEL",
		"log_format":        "LOG_FORMAT",
		"log_output":        "LOG_OUTPUT",
		"server.ingest.url": "NATS_URL",
	} {
		prefixed := constants.EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		_ = v.BindEnv(key, prefixed, env)
	}
}

func stringOr(v *viper.Viper, key, def string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	return def
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setStrings(v *viper.Viper, key string, dst *[]string) {
	if v.IsSet(key) {
		*dst = v.GetStringSlice(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func setBool(v *viper.Viper, key string, dst *bool) {
	if v.IsSet(key) {
		*dst = v.GetBool(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}
