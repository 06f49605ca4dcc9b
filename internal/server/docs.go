// Package server provides the HTTP server for the swarmcast event stream.
//
// This file contains general API documentation annotations for Swag/OpenAPI generation.
// Endpoint annotations live in the handler files.
package server

// @title Swarmcast API
// @version 1.0
// @description Real-time event distribution for agent swarms over WebSocket, SSE and HTTP polling.
// @description
// @description Features:
// @description - Per-topic sequencing with batching and coalescing
// @description - Wildcard subscriptions over topic rooms
// @description - Heartbeats, session resume and polling fallback
// @description - Bounded per-connection queues with priority eviction
//
// @contact.name Swarmcast Project
// @contact.url https://github.com/agentstation/swarmcast
//
// @license.name MIT
// @license.url https://github.com/agentstation/swarmcast/blob/master/LICENSE
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication (optional, configurable)
