// Package serve provides the swarmcast server command.
package serve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/cmd/emoji"
	"github.com/agentstation/swarmcast/internal/server"
	"github.com/agentstation/swarmcast/pkg/constants"
)

// NewCommand creates the serve command. config returns the configuration
// loaded from file and environment; flags the user sets override it.
func NewCommand(app application.Application, config func() server.Config) *cobra.Command {
	defaults := config()
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Start the event distribution server",
		Long: `Start the swarmcast server.

Endpoints (under --prefix, /api/v1 by default):
  POST /events             ingest one event or an array of events
  GET  /events             poll a topic's replay log or a session's queue
  GET  /ws                 websocket session (?session= to resume)
  GET  /stream             server-sent events session
  GET  /sessions           list sessions with filters
  GET  /stats              pipeline statistics
  GET  /health, /ready     liveness and readiness

With --nats-url the server also subscribes to a NATS subject and
publishes every message it receives as an event.`,
		Example: `  # Start on default port 8080
  swarmcast serve

  # Require an API key
  SWARMCAST_API_KEY=secret swarmcast serve --auth

  # Larger batches for a busy swarm
  swarmcast serve --batch-size 200 --batch-delay 250ms

  # Ingest from NATS
  swarmcast serve --nats-url nats://localhost:4222 --nats-subject "swarm.events.>"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := applyFlags(cmd.Flags(), config())
			return run(cmd.Context(), app, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()

	// Server
	f.Int("port", defaults.Port, "Server port (0 picks a free port)")
	f.String("host", defaults.Host, "Bind address")
	f.String("prefix", defaults.PathPrefix, "API path prefix")
	f.Duration("read-timeout", defaults.ReadTimeout, "Time allowed to read request headers")
	f.Duration("idle-timeout", defaults.IdleTimeout, "HTTP keep-alive idle timeout")
	f.Bool("metrics", defaults.MetricsEnabled, "Expose Prometheus metrics on /metrics")

	// CORS and auth
	f.Bool("cors", defaults.CORSEnabled, "Enable CORS")
	f.StringSlice("cors-origins", defaults.CORSOrigins, "Allowed CORS origins (comma-separated, empty for all)")
	f.Bool("auth", defaults.AuthEnabled, "Require an API key (set SWARMCAST_API_KEY or --api-key)")
	f.String("auth-header", defaults.AuthHeader, "Authentication header name")
	f.Int("rate-limit", defaults.RateLimit, "Requests per minute per IP (0 to disable)")

	// Batching
	f.Int("batch-size", defaults.Batching.MaxBatchSize, "Events that force a topic batch to flush")
	f.Duration("batch-delay", defaults.Batching.MaxBatchDelay, "Longest an event waits before its batch flushes")
	f.Int("batch-pending", defaults.Batching.MaxPending, "Pending events per topic before the oldest is dropped (0 derives from batch size)")
	f.Int("lanes", defaults.Batching.Lanes, "Ordered dispatch lanes")

	// Connections
	f.Duration("heartbeat-interval", defaults.Connections.HeartbeatInterval, "Time between server pings")
	f.Duration("heartbeat-warn", defaults.Connections.HeartbeatWarnTimeout, "Silence after which a connection is degraded")
	f.Duration("heartbeat-fail", defaults.Connections.HeartbeatFailTimeout, "Silence after which a connection is disconnected")
	f.Duration("max-idle", defaults.Connections.MaxIdleDisconnected, "How long a disconnected session is kept for resume")
	f.Duration("write-timeout", defaults.Connections.WriteTimeout, "Deadline for a single frame write")
	f.Int("queue-capacity", defaults.Connections.QueueCapacity, "Outbound queue capacity per session, in events")
	f.Duration("backoff-base", defaults.Connections.Backoff.Base, "First reconnect delay advertised to clients")
	f.Duration("backoff-max", defaults.Connections.Backoff.Max, "Reconnect delay ceiling")
	f.Float64("backoff-jitter", defaults.Connections.Backoff.JitterFraction, "Reconnect jitter fraction")
	f.Int("fallback-threshold", defaults.Connections.Backoff.FallbackThreshold, "Failed reconnects before polling fallback")

	// Replay and alerts
	f.Int("replay-retention", defaults.ReplayRetention, "Events retained per topic for catch-up")
	f.Duration("alert-interval", defaults.AlertInterval, "Minimum spacing of queue overflow alerts")

	// NATS ingest
	f.String("nats-url", defaults.Ingest.URL, "NATS server URL to ingest events from (empty disables)")
	f.String("nats-subject", defaults.Ingest.Subject, "NATS subject to subscribe to")
	f.String("nats-queue", defaults.Ingest.Queue, "NATS queue group (empty for a plain subscription)")

	return cmd
}

// applyFlags overlays the flags the user set onto cfg.
func applyFlags(f *pflag.FlagSet, cfg server.Config) server.Config {
	setInt(f, "port", &cfg.Port)
	setString(f, "host", &cfg.Host)
	setString(f, "prefix", &cfg.PathPrefix)
	setDuration(f, "read-timeout", &cfg.ReadTimeout)
	setDuration(f, "idle-timeout", &cfg.IdleTimeout)
	setBool(f, "metrics", &cfg.MetricsEnabled)

	setBool(f, "cors", &cfg.CORSEnabled)
	if f.Changed("cors-origins") {
		cfg.CORSOrigins, _ = f.GetStringSlice("cors-origins")
		cfg.CORSEnabled = true
	}
	setBool(f, "auth", &cfg.AuthEnabled)
	setString(f, "auth-header", &cfg.AuthHeader)
	setInt(f, "rate-limit", &cfg.RateLimit)

	if f.Changed("batch-size") && !f.Changed("batch-pending") {
		cfg.Batching.MaxPending = 0
	}
	setInt(f, "batch-size", &cfg.Batching.MaxBatchSize)
	setDuration(f, "batch-delay", &cfg.Batching.MaxBatchDelay)
	setInt(f, "batch-pending", &cfg.Batching.MaxPending)
	setInt(f, "lanes", &cfg.Batching.Lanes)

	c := &cfg.Connections
	setDuration(f, "heartbeat-interval", &c.HeartbeatInterval)
	setDuration(f, "heartbeat-warn", &c.HeartbeatWarnTimeout)
	setDuration(f, "heartbeat-fail", &c.HeartbeatFailTimeout)
	setDuration(f, "max-idle", &c.MaxIdleDisconnected)
	setDuration(f, "write-timeout", &c.WriteTimeout)
	setInt(f, "queue-capacity", &c.QueueCapacity)
	setDuration(f, "backoff-base", &c.Backoff.Base)
	setDuration(f, "backoff-max", &c.Backoff.Max)
	setFloat(f, "backoff-jitter", &c.Backoff.JitterFraction)
	setInt(f, "fallback-threshold", &c.Backoff.FallbackThreshold)

	setInt(f, "replay-retention", &cfg.ReplayRetention)
	setDuration(f, "alert-interval", &cfg.AlertInterval)

	setString(f, "nats-url", &cfg.Ingest.URL)
	setString(f, "nats-subject", &cfg.Ingest.Subject)
	setString(f, "nats-queue", &cfg.Ingest.Queue)

	return cfg
}

// run starts the server and blocks until ctx is cancelled or the listener
// fails, then shuts down gracefully.
func run(ctx context.Context, app application.Application, cfg server.Config, out io.Writer) error {
	logger := app.Logger()

	srv, err := server.New(app, cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	// A server-wide ReadTimeout would cancel long-lived stream requests.
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	logger.Info().
		Str("addr", ln.Addr().String()).
		Str("prefix", cfg.PathPrefix).
		Bool("auth", cfg.AuthEnabled).
		Int("rate_limit", cfg.RateLimit).
		Int("batch_size", cfg.Batching.MaxBatchSize).
		Dur("batch_delay", cfg.Batching.MaxBatchDelay).
		Bool("nats_ingest", cfg.Ingest.Enabled()).
		Msg("Server starting")

	fmt.Fprintf(out, "%s swarmcast listening on %s\n", emoji.Success, ln.Addr())
	fmt.Fprintln(out, "   Press Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutdown signal received")
		fmt.Fprintf(out, "\n%s Shutting down...\n", emoji.Stop)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Server stopped gracefully")
	fmt.Fprintf(out, "%s Server stopped\n", emoji.Success)
	return nil
}

func setInt(f *pflag.FlagSet, name string, dst *int) {
	if f.Changed(name) {
		*dst, _ = f.GetInt(name)
	}
}

func setString(f *pflag.FlagSet, name string, dst *string) {
	if f.Changed(name) {
		*dst, _ = f.GetString(name)
	}
}

func setBool(f *pflag.FlagSet, name string, dst *bool) {
	if f.Changed(name) {
		*dst, _ = f.GetBool(name)
	}
}

func setFloat(f *pflag.FlagSet, name string, dst *float64) {
	if f.Changed(name) {
		*dst, _ = f.GetFloat64(name)
	}
}

func setDuration(f *pflag.FlagSet, name string, dst *time.Duration) {
	if f.Changed(name) {
		*dst, _ = f.GetDuration(name)
	}
}
