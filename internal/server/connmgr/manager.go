// Package connmgr owns client sessions: their state machine, heartbeats,
// reconnection backoff, fallback to polling and per-connection queues.
package connmgr

import (
	"context"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agentstation/swarmcast/internal/backoff"
	"github.com/agentstation/swarmcast/internal/metrics"
	"github.com/agentstation/swarmcast/internal/server/cache"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/internal/server/rooms"
	"github.com/agentstation/swarmcast/pkg/errors"
)

const overflowWarnInterval = 10 * time.Second

// ClosedSession is remembered for a while after a session is destroyed so
// pollers learn why it went away.
type ClosedSession struct {
	ID       string    `json:"id"`
	Reason   string    `json:"reason"`
	ClosedAt time.Time `json:"closed_at"`
}

// PollResult answers a session poll.
type PollResult struct {
	Session string              `json:"session"`
	State   State               `json:"state"`
	Reason  string              `json:"reason,omitempty"`
	Frames  []protocol.Envelope `json:"frames"`
}

// Stats aggregates every live session.
type Stats struct {
	Connections int            `json:"connections"`
	ByState     map[string]int `json:"by_state"`
	Queued      int            `json:"queued"`
	Evicted     uint64         `json:"evicted"`
	Dropped     uint64         `json:"dropped"`
	Rooms       int            `json:"rooms"`
	MinQuality  float64        `json:"min_quality"`
	Tombstones  int            `json:"tombstones"`
}

// AlertFunc is told about queue overflows, subject to rate limiting.
type AlertFunc func(*errors.QueueOverflowError)

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records transitions, round trips and overflows.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithQualityHook receives the worst live quality on every Run tick.
func WithQualityHook(fn func(q float64)) Option {
	return func(mgr *Manager) { mgr.onQuality = fn }
}

// WithAlertFunc raises overflow alerts at most every interval.
func WithAlertFunc(fn AlertFunc, every time.Duration) Option {
	return func(mgr *Manager) {
		mgr.alert = fn
		if every > 0 {
			mgr.alertLimiter = rate.NewLimiter(rate.Every(every), 1)
		}
	}
}

// WithIDGenerator replaces uuid session IDs.
func WithIDGenerator(fn func() string) Option {
	return func(mgr *Manager) { mgr.newID = fn }
}

// WithTombstoneTTL sets how long closed sessions are remembered.
func WithTombstoneTTL(ttl time.Duration) Option {
	return func(mgr *Manager) { mgr.tombstoneTTL = ttl }
}

// WithRand seeds reconnect jitter, for tests.
func WithRand(r *rand.Rand) Option {
	return func(mgr *Manager) {
		mgr.backoffOpts = append(mgr.backoffOpts, backoff.WithRand(r))
	}
}

// Manager tracks sessions and routes batches to their queues.
type Manager struct {
	cfg     Config
	rooms   *rooms.Registry
	logger  *zerolog.Logger
	metrics *metrics.Metrics

	newID        func() string
	onQuality    func(float64)
	alert        AlertFunc
	alertLimiter *rate.Limiter
	warnLimiter  *rate.Limiter
	suppressed   atomic.Int64
	backoffOpts  []backoff.Option
	tombstoneTTL time.Duration

	mu         sync.RWMutex
	conns      map[string]*Connection
	tombstones *cache.Cache[ClosedSession]

	closing atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Manager over the given room registry.
func New(cfg Config, registry *rooms.Registry, logger *zerolog.Logger, opts ...Option) *Manager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:          cfg,
		rooms:        registry,
		logger:       logger,
		newID:        uuid.NewString,
		conns:        make(map[string]*Connection),
		tombstoneTTL: cfg.MaxIdleDisconnected,
		warnLimiter:  rate.NewLimiter(rate.Every(overflowWarnInterval), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tombstones = cache.New[ClosedSession](m.tombstoneTTL, m.tombstoneTTL)
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Open creates a session on t and performs the handshake. The session is
// returned even when the handshake fails, in which case it is Disconnected
// and may be resumed.
func (m *Manager) Open(t Transport) (*Connection, error) {
	if m.closing.Load() {
		return nil, errors.ErrClosed
	}
	c := newConnection(m.newID(), m)

	m.mu.Lock()
	m.conns[c.id] = c
	m.mu.Unlock()
	m.metrics.Transition("", Connecting.String())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.run()
	}()

	m.logger.Debug().Str("conn_id", c.id).Str("remote", t.RemoteAddr()).Msg("Session opened")
	return c, c.call(func() error { return c.attach(t) })
}

// Resume attaches t to an existing session. Queued frames are delivered in
// order once the handshake completes.
func (m *Manager) Resume(session string, t Transport) (*Connection, error) {
	if m.closing.Load() {
		return nil, errors.ErrClosed
	}
	c, ok := m.Get(session)
	if !ok {
		return nil, errors.NewNotFoundError("session", session)
	}
	return c, c.call(func() error { return c.attach(t) })
}

// Detach reports that t failed outside of a write, typically on read.
func (m *Manager) Detach(session string, t Transport, err error) {
	if c, ok := m.Get(session); ok {
		c.post(func() { c.transportFailed(t, "read", err) })
	}
}

// Get returns a live session.
func (m *Manager) Get(session string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[session]
	return c, ok
}

// Tombstone returns a recently closed session.
func (m *Manager) Tombstone(session string) (ClosedSession, bool) {
	return m.tombstones.Get(session)
}

// Sessions returns a snapshot of every session, sorted by creation time.
func (m *Manager) Sessions() []Info {
	conns := m.snapshot()
	infos := make([]Info, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}
	slices.SortFunc(infos, func(a, b Info) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return infos
}

// Close destroys a session and waits until it is gone.
func (m *Manager) Close(session, reason string) error {
	c, ok := m.Get(session)
	if !ok {
		return errors.NewNotFoundError("session", session)
	}
	if reason == "" {
		reason = "closed"
	}
	err := c.call(func() error {
		c.close(reason)
		return nil
	})
	<-c.done
	if errors.IsClosed(err) {
		return nil
	}
	return err
}

// Deliver enqueues b on every connection whose patterns match its topic. It
// never blocks on a slow consumer.
func (m *Manager) Deliver(b events.Batch) {
	for _, id := range m.rooms.Route(b.Topic) {
		if c, ok := m.Get(id); ok {
			c.queue.Push(b)
		}
	}
}

// HandleCommand applies a client frame to a session. Subscription results
// are answered with an ack or error frame on the session's queue.
func (m *Manager) HandleCommand(session string, cmd protocol.Envelope) error {
	c, ok := m.Get(session)
	if !ok {
		return errors.NewNotFoundError("session", session)
	}
	now := time.Now()

	switch cmd.Type {
	case protocol.TypeSubscribe:
		if err := m.rooms.Subscribe(session, cmd.Topic); err != nil {
			c.queue.PushControl(protocol.Error(cmd.Topic, err.Error(), now))
			return err
		}
		// A close racing the subscribe may have pruned rooms already.
		if c.State() == Closed {
			m.rooms.RemoveConnection(session)
			return errors.ErrClosed
		}
		c.queue.PushControl(protocol.Ack(session, cmd.Topic, now))
		m.logger.Debug().Str("conn_id", session).Str("pattern", cmd.Topic).Msg("Subscribed")
	case protocol.TypeUnsubscribe:
		if err := m.rooms.Unsubscribe(session, cmd.Topic); err != nil {
			c.queue.PushControl(protocol.Error(cmd.Topic, err.Error(), now))
			return err
		}
		c.queue.PushControl(protocol.Ack(session, cmd.Topic, now))
	case protocol.TypePong:
		id := cmd.ID
		if !c.post(func() { c.onPong(id) }) {
			return errors.ErrClosed
		}
		return nil
	default:
		return errors.NewValidationError("type", cmd.Type, "unsupported client frame")
	}

	c.post(c.touch)
	return nil
}

// Poll reports a session's state and, when drain is set and no transport is
// attached, hands over every queued frame. Polling counts as activity.
func (m *Manager) Poll(session string, drain bool) (PollResult, error) {
	c, ok := m.Get(session)
	if !ok {
		if ts, ok := m.tombstones.Get(session); ok {
			return PollResult{Session: session, State: Closed, Reason: ts.Reason, Frames: []protocol.Envelope{}}, nil
		}
		return PollResult{}, errors.NewNotFoundError("session", session)
	}

	res := PollResult{Session: session}
	err := c.call(func() error {
		c.touch()
		res.State = c.state
		if drain {
			res.Frames = c.drainQueue()
		}
		return nil
	})
	if err != nil {
		if ts, ok := m.tombstones.Get(session); ok {
			return PollResult{Session: session, State: Closed, Reason: ts.Reason, Frames: []protocol.Envelope{}}, nil
		}
		return PollResult{}, err
	}
	res.Reason = c.Info().FallbackReason
	if res.Frames == nil {
		res.Frames = []protocol.Envelope{}
	}
	return res, nil
}

// MinQuality is the worst quality across attached sessions, or 1 if none.
func (m *Manager) MinQuality() float64 {
	q := 1.0
	for _, c := range m.snapshot() {
		if c.State().Live() {
			q = min(q, c.Quality())
		}
	}
	return q
}

// Stats aggregates session counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		ByState:    make(map[string]int),
		Rooms:      m.rooms.Rooms(),
		MinQuality: m.MinQuality(),
		Tombstones: m.tombstones.ItemCount(),
	}
	for _, c := range m.snapshot() {
		s.Connections++
		s.ByState[c.State().String()]++
		qs := c.queue.Stats()
		s.Queued += qs.Len
		s.Evicted += qs.Evicted
		s.Dropped += qs.Dropped
	}
	return s
}

// Run publishes the worst session quality every heartbeat interval until ctx
// is cancelled, then shuts every session down.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), m.cfg.WriteTimeout)
			defer cancel()
			return m.Shutdown(shutdownCtx)
		case <-ticker.C:
			q := m.MinQuality()
			if m.onQuality != nil {
				m.onQuality(q)
			}
			m.metrics.Rooms(m.rooms.Rooms())
		}
	}
}

// Shutdown closes every session and refuses new ones.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.closing.Swap(true) {
		return nil
	}
	for _, c := range m.snapshot() {
		c.post(func() { c.close("server shutdown") })
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info().Msg("All sessions closed")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) snapshot() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// forget is called by a connection entering Closed.
func (m *Manager) forget(c *Connection, reason string) {
	m.mu.Lock()
	delete(m.conns, c.id)
	m.mu.Unlock()

	m.tombstones.Set(c.id, ClosedSession{ID: c.id, Reason: reason, ClosedAt: time.Now()})
	m.metrics.Transition(Closed.String(), "")
	m.logger.Info().Str("conn_id", c.id).Str("reason", reason).Msg("Session closed")
}

// overflow warns at most once per overflowWarnInterval across all sessions.
// Overflows in between are logged at debug and counted into the next warning.
func (m *Manager) overflow(e *errors.QueueOverflowError) {
	m.metrics.QueueOverflow(e.Evicted, e.Dropped)
	ev := m.logger.Debug()
	if m.warnLimiter.Allow() {
		ev = m.logger.Warn().Int64("suppressed", m.suppressed.Swap(0))
	} else {
		m.suppressed.Add(1)
	}
	ev.Str("conn_id", e.ConnID).
		Int("evicted", e.Evicted).
		Int("dropped", e.Dropped).
		Str("kind", e.Kind).
		Msg("Outbound queue overflow")
	if m.alert != nil && (m.alertLimiter == nil || m.alertLimiter.Allow()) {
		m.alert(e)
	}
}
