// Package server provides the HTTP server for the swarmcast event stream.
//
// Components are layered the same way requests flow:
//
//   - Server: builds the pipeline and owns its lifecycle
//   - Config: server, batching and connection settings
//   - Router: route registration and middleware chain
//   - Handlers: ingest, polling, sessions and realtime endpoints
//
// Usage:
//
//	cfg := server.DefaultConfig()
//	srv, err := server.New(app, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	srv.Start()
//	http.ListenAndServe(":8080", srv.Handler())
package server

//go:generate gomarkdoc --output README.md .
