package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/server/batching"
	"github.com/agentstation/swarmcast/internal/server/connmgr"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/server/replay"
	"github.com/agentstation/swarmcast/internal/server/rooms"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	broker    *events.Broker
	engine    *batching.Engine
	sessions  *connmgr.Manager
	replay    *replay.Log
	rooms     *rooms.Registry
	ws        http.Handler
	sse       http.Handler
	logger    *zerolog.Logger
	startTime time.Time
	version   string
}

// New creates a new Handlers instance.
func New(
	broker *events.Broker,
	engine *batching.Engine,
	sessions *connmgr.Manager,
	replayLog *replay.Log,
	registry *rooms.Registry,
	ws http.Handler,
	sse http.Handler,
	logger *zerolog.Logger,
	version string,
) *Handlers {
	return &Handlers{
		broker:    broker,
		engine:    engine,
		sessions:  sessions,
		replay:    replayLog,
		rooms:     registry,
		ws:        ws,
		sse:       sse,
		logger:    logger,
		startTime: time.Now(),
		version:   version,
	}
}
