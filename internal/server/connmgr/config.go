package connmgr

import (
	"time"

	"github.com/agentstation/swarmcast/internal/backoff"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Config tunes heartbeats, queues and reconnection.
type Config struct {
	HeartbeatInterval    time.Duration  `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatWarnTimeout time.Duration  `json:"heartbeat_warn_timeout" yaml:"heartbeat_warn_timeout"`
	HeartbeatFailTimeout time.Duration  `json:"heartbeat_fail_timeout" yaml:"heartbeat_fail_timeout"`
	MaxIdleDisconnected  time.Duration  `json:"max_idle_disconnected" yaml:"max_idle_disconnected"`
	WriteTimeout         time.Duration  `json:"write_timeout" yaml:"write_timeout"`
	QueueCapacity        int            `json:"queue_capacity" yaml:"queue_capacity"`
	Backoff              backoff.Policy `json:"backoff" yaml:"backoff"`
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    constants.DefaultHeartbeatInterval,
		HeartbeatWarnTimeout: constants.DefaultHeartbeatWarnTimeout,
		HeartbeatFailTimeout: constants.DefaultHeartbeatFailTimeout,
		MaxIdleDisconnected:  constants.DefaultMaxIdleDisconnected,
		WriteTimeout:         constants.DefaultWriteTimeout,
		QueueCapacity:        constants.DefaultQueueCapacity,
		Backoff:              backoff.DefaultPolicy(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.HeartbeatWarnTimeout <= 0 {
		c.HeartbeatWarnTimeout = def.HeartbeatWarnTimeout
	}
	if c.HeartbeatFailTimeout <= 0 {
		c.HeartbeatFailTimeout = def.HeartbeatFailTimeout
	}
	if c.MaxIdleDisconnected <= 0 {
		c.MaxIdleDisconnected = def.MaxIdleDisconnected
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = def.QueueCapacity
	}
	return c
}

// Validate checks ordering between the heartbeat thresholds.
func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return errors.NewConfigError("connmgr", "heartbeat_interval must be positive", nil)
	}
	if c.HeartbeatWarnTimeout <= c.HeartbeatInterval {
		return errors.NewConfigError("connmgr", "heartbeat_warn_timeout must exceed heartbeat_interval", nil)
	}
	if c.HeartbeatFailTimeout <= c.HeartbeatWarnTimeout {
		return errors.NewConfigError("connmgr", "heartbeat_fail_timeout must exceed heartbeat_warn_timeout", nil)
	}
	if c.MaxIdleDisconnected <= 0 {
		return errors.NewConfigError("connmgr", "max_idle_disconnected must be positive", nil)
	}
	if c.QueueCapacity < 1 {
		return errors.NewConfigError("connmgr", "queue_capacity must be at least 1", nil)
	}
	return c.Backoff.Validate()
}
