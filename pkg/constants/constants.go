// Package constants provides shared constants used throughout the swarmcast codebase.
// This includes stream defaults, timeouts, limits and file permissions that
// should be consistent across the server, the CLI and the client SDK.
package constants

import "time"

// Batching defaults
const (
	// DefaultMaxBatchSize is the number of events that forces a shard flush
	DefaultMaxBatchSize = 50

	// DefaultMaxBatchDelay is the longest an event waits before its shard flushes
	DefaultMaxBatchDelay = 100 * time.Millisecond

	// DefaultDispatchLanes is the number of ordered dispatch lanes
	DefaultDispatchLanes = 4

	// PendingCapFactor multiplies max batch size to obtain the pending cap per shard
	PendingCapFactor = 4
)

// Connection defaults
const (
	// DefaultHeartbeatInterval is the time between server pings
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultHeartbeatWarnTimeout is the silence after which a connection degrades
	DefaultHeartbeatWarnTimeout = 10 * time.Second

	// DefaultHeartbeatFailTimeout is the silence after which a connection is disconnected
	DefaultHeartbeatFailTimeout = 30 * time.Second

	// DefaultMaxIdleDisconnected is how long a session survives without a transport
	DefaultMaxIdleDisconnected = 5 * time.Minute

	// DefaultQueueCapacity is the per-connection outbound queue capacity in events
	DefaultQueueCapacity = 1000

	// DefaultFallbackThreshold is the failed reconnect count that triggers polling
	DefaultFallbackThreshold = 3

	// DefaultWriteTimeout bounds a single transport write
	DefaultWriteTimeout = 10 * time.Second
)

// Backoff defaults
const (
	// BackoffBase is the first reconnect delay
	BackoffBase = 1 * time.Second

	// BackoffMax caps the reconnect delay
	BackoffMax = 30 * time.Second

	// BackoffJitter is the maximum jitter fraction added to each delay
	BackoffJitter = 0.2
)

// Replay defaults
const (
	// DefaultReplayRetention is the number of events retained per topic
	DefaultReplayRetention = 1000

	// DefaultPollLimit is the page size for polling when no limit is given
	DefaultPollLimit = 100

	// MaxPollLimit caps the page size for polling
	MaxPollLimit = 1000
)

// Quality constants
const (
	// QualityRTTAlpha is the smoothing factor of the round-trip EWMA
	QualityRTTAlpha = 0.2

	// QualityLossPenalty is subtracted from quality for each missed heartbeat
	QualityLossPenalty = 0.25

	// QualityFloor is the lowest quality that still scales batching
	QualityFloor = 0.1
)

// Limit constants
const (
	// MaxTopicLength is the maximum allowed length of a topic
	MaxTopicLength = 128

	// MaxPayloadBytes is the largest accepted event payload
	MaxPayloadBytes = 64 * 1024

	// ChannelBufferSize is the default buffer size for channels
	ChannelBufferSize = 100
)

// Timeout constants
const (
	// DefaultHTTPTimeout is the standard timeout for HTTP requests
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// ShutdownTimeout bounds graceful server shutdown
	ShutdownTimeout = 30 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Rate limiting constants
const (
	// DefaultRateLimit is the default requests per minute per client
	DefaultRateLimit = 600

	// BurstSize is the token bucket burst size for rate limiting
	BurstSize = 50
)

// Path constants
const (
	// DefaultConfigPath is the default path for configuration files
	DefaultConfigPath = "~/.swarmcast.yaml"

	// ConfigName is the config file name searched in $HOME and the working directory
	ConfigName = ".swarmcast"

	// EnvPrefix prefixes every environment variable read by the CLI
	EnvPrefix = "SWARMCAST"
)

// Client defaults
const (
	// DefaultServerURL is the server client commands talk to
	DefaultServerURL = "http://localhost:8080"

	// DefaultPathPrefix is the API path prefix
	DefaultPathPrefix = "/api/v1"
)

// Format constants
const (
	// TimeFormatHuman is a human-readable time format
	TimeFormatHuman = "Jan 2, 2006 at 3:04pm MST"

	// TimeFormatLog is the format used in log files
	TimeFormatLog = "2006-01-02 15:04:05.000"
)
