package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CORSConfig holds CORS configuration for browser subscribers.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	// AllowedHeaders are request headers a browser may send cross-origin.
	AllowedHeaders []string
	// ExposedHeaders are response headers readable by browser scripts.
	ExposedHeaders []string
	MaxAge         time.Duration
	AllowAll       bool
}

// DefaultCORSConfig covers the API surface: status and topic reads, ingest
// and websocket upgrades, session close.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", RequestIDHeader, "Last-Event-ID"},
		ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:         10 * time.Minute,
	}
}

// WithHeader returns a copy of the config that also allows header, such as
// a custom auth header name.
func (c CORSConfig) WithHeader(header string) CORSConfig {
	if header == "" || slices.ContainsFunc(c.AllowedHeaders, func(h string) bool {
		return strings.EqualFold(h, header)
	}) {
		return c
	}
	c.AllowedHeaders = append(slices.Clone(c.AllowedHeaders), header)
	return c
}

// CORS returns a CORS middleware. Preflights from allowed origins are
// answered with 204; preflights from other origins get 403. Simple requests
// from other origins pass through without CORS headers.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	wildcard := config.AllowAll || len(config.AllowedOrigins) == 0 || slices.Contains(config.AllowedOrigins, "*")
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	exposed := strings.Join(config.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(int(config.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if !wildcard {
				w.Header().Add("Vary", "Origin")
			}
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !wildcard && !isOriginAllowed(origin, config.AllowedOrigins) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			if preflight {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed reports whether origin matches an entry exactly, ignoring
// case.
func isOriginAllowed(origin string, allowed []string) bool {
	return slices.ContainsFunc(allowed, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}
