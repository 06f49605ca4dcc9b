package batching

import (
	"time"

	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Config tunes the engine.
type Config struct {
	// MaxBatchSize forces a flush when a topic has this many pending events.
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`
	// MaxBatchDelay is the flush tick.
	MaxBatchDelay time.Duration `json:"max_batch_delay" yaml:"max_batch_delay"`
	// MaxPending caps a topic's pending buffer while its lane is saturated.
	MaxPending int `json:"max_pending" yaml:"max_pending"`
	// Lanes is the number of ordered dispatch lanes.
	Lanes int `json:"lanes" yaml:"lanes"`
	// LaneBuffer is how many batches a lane holds before flushes back off.
	LaneBuffer int `json:"lane_buffer" yaml:"lane_buffer"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  constants.DefaultMaxBatchSize,
		MaxBatchDelay: constants.DefaultMaxBatchDelay,
		MaxPending:    constants.DefaultMaxBatchSize * constants.PendingCapFactor,
		Lanes:         constants.DefaultDispatchLanes,
		LaneBuffer:    1024,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.MaxBatchDelay <= 0 {
		c.MaxBatchDelay = def.MaxBatchDelay
	}
	if c.MaxPending <= 0 {
		c.MaxPending = c.MaxBatchSize * constants.PendingCapFactor
	}
	if c.Lanes <= 0 {
		c.Lanes = def.Lanes
	}
	if c.LaneBuffer <= 0 {
		c.LaneBuffer = def.LaneBuffer
	}
	return c
}

// Validate checks the configuration bounds.
func (c Config) Validate() error {
	if c.MaxBatchSize < 1 {
		return errors.NewConfigError("batching", "max_batch_size must be at least 1", nil)
	}
	if c.MaxBatchDelay < time.Millisecond {
		return errors.NewConfigError("batching", "max_batch_delay must be at least 1ms", nil)
	}
	if c.MaxPending != 0 && c.MaxPending < 1 {
		return errors.NewConfigError("batching", "max_pending must be positive", nil)
	}
	if c.Lanes < 0 {
		return errors.NewConfigError("batching", "lanes must not be negative", nil)
	}
	return nil
}
