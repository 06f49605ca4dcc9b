// Package server wires the swarmcast distribution pipeline to HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/ingest"
	"github.com/agentstation/swarmcast/internal/metrics"
	"github.com/agentstation/swarmcast/internal/server/batching"
	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/server/events/adapters"
	"github.com/agentstation/swarmcast/internal/server/middleware"
	"github.com/agentstation/swarmcast/internal/server/replay"
	"github.com/agentstation/swarmcast/internal/server/rooms"
	"github.com/agentstation/swarmcast/internal/server/sse"
	ws "github.com/agentstation/swarmcast/internal/server/websocket"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Server holds the distribution pipeline and its HTTP surface.
//
// Events flow broker → engine → sessions: the broker validates producer
// input, the engine sequences and batches it per topic, and the session
// manager routes batches through rooms into per-connection queues. The
// replay log records every dispatched batch for catch-up polling.
type Server struct {
	app      application.Application
	config   Config
	logger   *zerolog.Logger
	metrics  *metrics.Metrics
	rooms    *rooms.Registry
	sessions *connmgr.Manager
	engine   *batching.Engine
	broker   *events.Broker
	replay   *replay.Log
	swarm    *adapters.Swarm
	wsH      *ws.Handler
	sseH     *sse.Handler
	ingest   *ingest.Subscriber
	limiter  *middleware.RateLimiter

	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	startTime time.Time
}

// New creates a new server instance with the given configuration.
func New(app application.Application, cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := app.Logger()
	logger.Debug().Msg("Creating new server instance")

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	s := &Server{
		app:       app,
		config:    cfg,
		logger:    logger,
		metrics:   m,
		rooms:     rooms.New(rooms.WithRoomCountHook(m.Rooms)),
		replay:    replay.New(cfg.ReplayRetention, cfg.Connections.MaxIdleDisconnected),
		startTime: time.Now(),
	}

	s.sessions = connmgr.New(cfg.Connections, s.rooms, logger,
		connmgr.WithMetrics(m),
		connmgr.WithQualityHook(s.adaptBatching),
		connmgr.WithAlertFunc(s.raiseOverflowAlert, cfg.AlertInterval),
	)
	s.engine = batching.NewEngine(cfg.Batching, s.sessions, logger,
		batching.WithRecorder(s.replay),
		batching.WithMetrics(m),
	)
	s.broker = events.NewBroker(s.engine, logger, events.WithMetrics(m))
	s.swarm = adapters.NewSwarm(s.broker)

	if cfg.Ingest.Enabled() {
		s.ingest = ingest.New(cfg.Ingest, s.broker, logger, ingest.WithMetrics(m))
	}

	s.wsH = ws.NewHandler(s.sessions, logger, ws.WithWriteTimeout(cfg.Connections.WriteTimeout))
	s.sseH = sse.NewHandler(s.sessions, logger, cfg.Connections.WriteTimeout)

	s.ctx, s.cancel = context.WithCancel(context.Background())

	logger.Debug().Msg("Server instance created successfully")
	return s, nil
}

// adaptBatching feeds the worst live connection quality to the engine.
func (s *Server) adaptBatching(q float64) {
	s.engine.SetQuality(q)
}

// raiseOverflowAlert publishes a queue overflow on the system topic.
func (s *Server) raiseOverflowAlert(e *errors.QueueOverflowError) {
	if err := s.swarm.Alert(adapters.AlertWarning, "queue", e.Error()); err != nil {
		s.logger.Debug().Err(err).Msg("Overflow alert not published")
	}
}

// Start starts background services (batching engine, session manager).
func (s *Server) Start() {
	if s.group != nil {
		return
	}
	s.logger.Debug().Msg("Starting background services")

	s.engine.Start()
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return s.sessions.Run(ctx) })
	if s.ingest != nil {
		g.Go(func() error { return s.ingest.Run(ctx) })
	}
	s.group = g

	s.logger.Debug().Msg("All background services started")
}

// Run starts the background services and stops them when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.Start()
	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Connections.WriteTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// Shutdown flushes pending events into the session queues, then closes
// every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server background services")

	if s.limiter != nil {
		s.limiter.Stop()
	}
	s.engine.Close()
	s.cancel()

	if s.group == nil {
		return s.sessions.Shutdown(ctx)
	}

	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		s.logger.Info().Msg("Background services shut down successfully")
		return err
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}

// Swarm returns typed helpers for publishing swarm events.
func (s *Server) Swarm() *adapters.Swarm {
	return s.swarm
}

// Sessions returns the session manager.
func (s *Server) Sessions() *connmgr.Manager {
	return s.sessions
}

// Engine returns the batching engine.
func (s *Server) Engine() *batching.Engine {
	return s.engine
}

// Ingest returns the NATS subscriber, nil when ingest is disabled.
func (s *Server) Ingest() *ingest.Subscriber {
	return s.ingest
}

// Metrics returns the metrics registry, nil when disabled.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
