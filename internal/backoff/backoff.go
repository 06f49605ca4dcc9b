// Package backoff implements the reconnection delay policy shared by the
// server connection manager and the dashboard client: exponential growth from
// a base delay to a ceiling, uniform jitter on top, and a failure threshold
// after which the caller should fall back to polling.
package backoff

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Policy configures a Controller.
type Policy struct {
	Base              time.Duration `json:"base" yaml:"base"`
	Max               time.Duration `json:"max" yaml:"max"`
	JitterFraction    float64       `json:"jitter_fraction" yaml:"jitter_fraction"`
	FallbackThreshold int           `json:"fallback_threshold" yaml:"fallback_threshold"`
}

// DefaultPolicy returns 1s base, 30s ceiling, 20% jitter and a threshold of 3.
func DefaultPolicy() Policy {
	return Policy{
		Base:              constants.BackoffBase,
		Max:               constants.BackoffMax,
		JitterFraction:    constants.BackoffJitter,
		FallbackThreshold: constants.DefaultFallbackThreshold,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	switch {
	case p.Base <= 0:
		return errors.NewConfigError("backoff", "base must be positive", nil)
	case p.Max < p.Base:
		return errors.NewConfigError("backoff", "max must be >= base", nil)
	case p.JitterFraction < 0 || p.JitterFraction > 1:
		return errors.NewConfigError("backoff", "jitter fraction must be within [0,1]", nil)
	case p.FallbackThreshold < 1:
		return errors.NewConfigError("backoff", "fallback threshold must be at least 1", nil)
	}
	return nil
}

// Controller tracks consecutive failed attempts. It is safe for concurrent use.
type Controller struct {
	policy Policy

	mu       sync.Mutex
	attempts int
	rng      *rand.Rand
}

// Option configures a Controller.
type Option func(*Controller)

// WithRand sets the jitter source, for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) { c.rng = r }
}

// New creates a controller. Zero policy fields take their defaults.
func New(p Policy, opts ...Option) *Controller {
	def := DefaultPolicy()
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.FallbackThreshold <= 0 {
		p.FallbackThreshold = def.FallbackThreshold
	}

	c := &Controller{
		policy: p,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the effective policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Peek returns the un-jittered delay for a zero-based attempt.
func (c *Controller) Peek(attempt int) time.Duration {
	d := c.policy.Base
	for i := 0; i < attempt; i++ {
		if d >= c.policy.Max/2 {
			return c.policy.Max
		}
		d *= 2
	}
	return min(d, c.policy.Max)
}

// Next returns the delay before the next attempt and counts the attempt.
func (c *Controller) Next() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.Peek(c.attempts)
	c.attempts++

	if span := int64(float64(d) * c.policy.JitterFraction); span > 0 {
		d += time.Duration(c.rng.Int63n(span + 1))
	}
	return d
}

// Failure counts a failed attempt without computing a delay.
func (c *Controller) Failure() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.attempts
}

// Reset clears the attempt counter after a successful connection.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.attempts = 0
	c.mu.Unlock()
}

// Attempts returns the number of consecutive failed attempts.
func (c *Controller) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// ShouldFallback reports whether failures reached the fallback threshold.
func (c *Controller) ShouldFallback() bool {
	return c.Attempts() >= c.policy.FallbackThreshold
}

// Wait sleeps for Next() or until ctx is done.
func (c *Controller) Wait(ctx context.Context) error {
	timer := time.NewTimer(c.Next())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
