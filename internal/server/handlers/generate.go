// Package handlers provides HTTP request handlers for the swarmcast API.
//
// Handlers are organized by domain:
//
//   - events.go: producer ingest and catch-up / fallback polling
//   - sessions.go: session listing, inspection, close and client commands
//   - stats.go: server statistics
//   - health.go: health and readiness checks
//   - realtime.go: WebSocket and SSE streams
//
// Every non-streaming handler answers with the response package envelope and
// maps typed errors through response.ErrorFromType.
package handlers

//go:generate gomarkdoc --output README.md .
