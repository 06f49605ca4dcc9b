// Package ingest feeds events published on NATS into the swarmcast broker.
//
// Producers publish JSON events (one object or an array) on subjects under
// the configured prefix, e.g. swarm.events.agent-7. A message without a
// topic takes it from the subject suffix. Requests with a reply subject get
// a JSON result back.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/metrics"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/pkg/errors"
)

const source = "nats"

// Config holds the NATS subscription settings. An empty URL disables ingest.
type Config struct {
	URL           string        `yaml:"url"`
	Subject       string        `yaml:"subject"`
	Queue         string        `yaml:"queue"`
	Name          string        `yaml:"name"`
	Token         string        `json:"-" yaml:"-"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
}

// DefaultConfig returns ingest defaults with ingest disabled.
func DefaultConfig() Config {
	return Config{
		Subject:       "swarm.events.>",
		Queue:         "swarmcast",
		Name:          "swarmcast",
		ReconnectWait: 2 * time.Second,
		DrainTimeout:  5 * time.Second,
	}
}

// Enabled reports whether a server URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// Validate checks the subject when ingest is enabled.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Subject == "" {
		return errors.NewConfigError("ingest", "subject is required", nil)
	}
	return nil
}

// prefix returns the literal subject prefix before any wildcard token.
func (c Config) prefix() string {
	var kept []string
	for _, tok := range strings.Split(c.Subject, ".") {
		if tok == "*" || tok == ">" {
			break
		}
		kept = append(kept, tok)
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, ".") + "."
}

// Publisher accepts validated events.
type Publisher interface {
	Publish(events.Event) (events.Event, error)
}

// Result is the reply sent to request-style publishes.
type Result struct {
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

// Stats reports ingest counters.
type Stats struct {
	Connected bool   `json:"connected"`
	Messages  uint64 `json:"messages"`
	Accepted  uint64 `json:"accepted"`
	Rejected  uint64 `json:"rejected"`
}

// Subscriber consumes producer events from NATS.
type Subscriber struct {
	cfg     Config
	pub     Publisher
	logger  *zerolog.Logger
	metrics *metrics.Metrics

	conn atomic.Pointer[nats.Conn]

	messages atomic.Uint64
	accepted atomic.Uint64
	rejected atomic.Uint64
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithMetrics records ingest results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Subscriber) { s.metrics = m }
}

// New creates a subscriber. It does not connect until Run.
func New(cfg Config, pub Publisher, logger *zerolog.Logger, opts ...Option) *Subscriber {
	def := DefaultConfig()
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	l := logger.With().Str("component", "ingest").Logger()
	s := &Subscriber{cfg: cfg, pub: pub, logger: &l}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the counters.
func (s *Subscriber) Stats() Stats {
	return Stats{
		Connected: s.connected(),
		Messages:  s.messages.Load(),
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
	}
}

func (s *Subscriber) connected() bool {
	c := s.conn.Load()
	return c != nil && c.IsConnected()
}

func (s *Subscriber) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(s.cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(s.cfg.ReconnectWait),
		nats.RetryOnFailedConnect(true),
		nats.DrainTimeout(s.cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info().Str("url", c.ConnectedUrlRedacted()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			s.logger.Error().Err(err).Msg("NATS async error")
		}),
	}
	if s.cfg.Token != "" {
		opts = append(opts, nats.Token(s.cfg.Token))
	}
	return opts
}

// Run connects, subscribes and consumes until ctx is done, then drains.
// Connection failures are retried in the background and do not end Run.
func (s *Subscriber) Run(ctx context.Context) error {
	conn, err := nats.Connect(s.cfg.URL, s.options()...)
	if err != nil {
		return errors.WrapConfig("ingest", err)
	}
	s.conn.Store(conn)

	var sub *nats.Subscription
	if s.cfg.Queue != "" {
		sub, err = conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, s.handle)
	} else {
		sub, err = conn.Subscribe(s.cfg.Subject, s.handle)
	}
	if err != nil {
		conn.Close()
		return errors.WrapConfig("ingest", err)
	}

	s.logger.Info().
		Str("subject", sub.Subject).
		Str("queue", s.cfg.Queue).
		Msg("NATS ingest subscribed")

	<-ctx.Done()

	if err := conn.Drain(); err != nil {
		s.logger.Warn().Err(err).Msg("NATS drain failed")
		conn.Close()
	}
	return nil
}

// handle processes one NATS message.
func (s *Subscriber) handle(msg *nats.Msg) {
	s.messages.Add(1)
	res := s.ingest(msg.Subject, msg.Data)

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Debug().Err(err).Msg("NATS reply failed")
	}
}

// ingest decodes and publishes the events in data. It stops at the first
// rejected event so ordering within a message is kept.
func (s *Subscriber) ingest(subject string, data []byte) Result {
	batch, err := decode(data)
	if err != nil {
		s.reject(subject, 1)
		return Result{Rejected: 1, Error: errors.NewMalformedEventError("", "", "message is not an event or an array of events", err).Error()}
	}

	topic := strings.TrimPrefix(subject, s.cfg.prefix())
	var res Result
	for i, ev := range batch {
		if ev.Topic == "" && topic != subject {
			ev.Topic = topic
		}
		if _, err := s.pub.Publish(ev); err != nil {
			res.Rejected = len(batch) - i
			res.Error = err.Error()
			s.reject(subject, res.Rejected)
			return res
		}
		res.Accepted++
		s.accepted.Add(1)
		s.metrics.Ingested(source, "accepted")
	}
	return res
}

func (s *Subscriber) reject(subject string, n int) {
	s.rejected.Add(uint64(n))
	for range n {
		s.metrics.Ingested(source, "rejected")
	}
	s.logger.Debug().Str("subject", subject).Int("rejected", n).Msg("NATS message rejected")
}

// decode accepts a single event object or an array.
func decode(data []byte) ([]events.Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []events.Event
		err := json.Unmarshal(trimmed, &batch)
		return batch, err
	}
	var one events.Event
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []events.Event{one}, nil
}
