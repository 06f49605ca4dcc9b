package server

import (
	"net/http"
	"strings"

	"github.com/agentstation/swarmcast/internal/server/handlers"
	"github.com/agentstation/swarmcast/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()

	h := handlers.New(
		s.broker,
		s.engine,
		s.sessions,
		s.replay,
		s.rooms,
		s.wsH,
		s.sseH,
		s.logger,
		s.app.Version(),
	)

	s.registerRoutes(mux, h)

	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix

	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints (no auth required)
	mux.HandleFunc("/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/health", h.HandleHealth)
	mux.HandleFunc(prefix+"/ready", h.HandleReady)

	// API documentation
	mux.HandleFunc(prefix+"/openapi.json", h.HandleOpenAPIJSON)
	mux.HandleFunc(prefix+"/openapi.yaml", h.HandleOpenAPIYAML)

	mux.HandleFunc(prefix+"/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.HandleStats(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// Producer ingest and catch-up polling
	mux.HandleFunc(prefix+"/events", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.HandleIngest(w, r)
		case http.MethodGet:
			h.HandlePoll(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Sessions
	mux.HandleFunc(prefix+"/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.HandleListSessions(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc(prefix+"/sessions/", func(w http.ResponseWriter, r *http.Request) {
		parts := splitPath(strings.TrimPrefix(r.URL.Path, prefix+"/sessions/"))
		if len(parts) == 0 {
			http.Error(w, "Session ID required", http.StatusBadRequest)
			return
		}
		id := parts[0]

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			h.HandleGetSession(w, r, id)
			return
		case len(parts) == 1 && r.Method == http.MethodDelete:
			h.HandleCloseSession(w, r, id)
			return
		case len(parts) == 2 && parts[1] == "commands" && r.Method == http.MethodPost:
			h.HandleSessionCommand(w, r, id)
			return
		}
		http.Error(w, "Not found", http.StatusNotFound)
	})

	// Real-time endpoints
	mux.HandleFunc(prefix+"/ws", h.HandleWebSocket)
	mux.HandleFunc(prefix+"/stream", h.HandleSSE)

	if s.config.MetricsEnabled && s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if cfg.RateLimit > 0 {
		if s.limiter == nil {
			s.limiter = middleware.NewRateLimiter(cfg.RateLimit, s.logger)
		}
		handler = middleware.RateLimit(s.limiter)(handler)
	}

	// Authentication (if enabled)
	if cfg.AuthEnabled {
		authConfig := middleware.DefaultAuthConfig()
		authConfig.Enabled = true
		authConfig.APIKey = cfg.APIKey
		authConfig.HeaderName = cfg.AuthHeader
		authConfig.PublicPaths = []string{
			"/health",
			"/metrics",
			cfg.PathPrefix + "/health",
			cfg.PathPrefix + "/ready",
			cfg.PathPrefix + "/openapi.json",
			cfg.PathPrefix + "/openapi.yaml",
		}
		handler = middleware.Auth(authConfig, s.logger)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig().WithHeader(cfg.AuthHeader)
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging, request IDs and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}

// splitPath splits a URL path into parts, removing empty strings.
func splitPath(path string) []string {
	parts := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
