package connmgr

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/backoff"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/internal/server/queue"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Info is a point-in-time view of a connection.
type Info struct {
	ID                string      `json:"id"`
	State             State       `json:"state"`
	Remote            string      `json:"remote,omitempty"`
	Topics            []string    `json:"topics"`
	Queue             queue.Stats `json:"queue"`
	Quality           float64     `json:"quality"`
	RTTMillis         float64     `json:"rtt_ms"`
	ReconnectAttempts int         `json:"reconnect_attempts"`
	FallbackReason    string      `json:"fallback_reason,omitempty"`
	LastHeartbeat     time.Time   `json:"last_heartbeat"`
	LastActivity      time.Time   `json:"last_activity"`
	CreatedAt         time.Time   `json:"created_at"`
}

// Connection is one client session. Its state, timers and transport are owned
// by a single run goroutine; other goroutines post closures to it. The
// outbound queue is the only part touched from outside, through its own lock.
type Connection struct {
	id      string
	mgr     *Manager
	cfg     Config
	logger  zerolog.Logger
	queue   *queue.Queue
	backoff *backoff.Controller
	created time.Time

	inbox chan func()
	done  chan struct{}

	// Owned by the run goroutine.
	state     State
	transport Transport
	drainStop chan struct{}
	drainDone chan struct{}
	quality   *quality
	pingSeq   uint64
	pingID    string
	pingSent  time.Time
	heartbeat ticker
	warn      timer
	fail      timer
	retry     timer
	idle      timer

	// Published for readers.
	mu          sync.RWMutex
	snap        Info
	qualityBits atomic.Uint64
}

func newConnection(id string, m *Manager) *Connection {
	now := time.Now()
	c := &Connection{
		id:      id,
		mgr:     m,
		cfg:     m.cfg,
		logger:  m.logger.With().Str("conn_id", id).Logger(),
		backoff: backoff.New(m.cfg.Backoff, m.backoffOpts...),
		created: now,
		inbox:   make(chan func(), 16),
		done:    make(chan struct{}),
		state:   Connecting,
		quality: newQuality(m.cfg.HeartbeatWarnTimeout),
		snap: Info{
			ID:            id,
			State:         Connecting,
			Quality:       1,
			LastHeartbeat: now,
			LastActivity:  now,
			CreatedAt:     now,
		},
	}
	c.qualityBits.Store(math.Float64bits(1))
	c.queue = queue.New(m.cfg.QueueCapacity, queue.WithOverflowHandler(func(e *errors.QueueOverflowError) {
		e.ConnID = id
		m.overflow(e)
	}))
	return c
}

// ID returns the session identifier.
func (c *Connection) ID() string { return c.id }

// Queue returns the outbound queue.
func (c *Connection) Queue() *queue.Queue { return c.queue }

// Done is closed once the connection reaches Closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// State returns the current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.State
}

// Quality returns the current quality score in [0,1].
func (c *Connection) Quality() float64 {
	return math.Float64frombits(c.qualityBits.Load())
}

// Info returns a snapshot of the connection.
func (c *Connection) Info() Info {
	c.mu.RLock()
	info := c.snap
	c.mu.RUnlock()

	info.Quality = c.Quality()
	info.Queue = c.queue.Stats()
	info.Topics = c.mgr.rooms.Topics(c.id)
	if info.Topics == nil {
		info.Topics = []string{}
	}
	info.ReconnectAttempts = c.backoff.Attempts()
	return info
}

// post runs fn on the run goroutine. It reports false once the connection is closed.
func (c *Connection) post(fn func()) bool {
	select {
	case c.inbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the run goroutine and waits for its result.
func (c *Connection) call(fn func() error) error {
	res := make(chan error, 1)
	if !c.post(func() { res <- fn() }) {
		return errors.ErrClosed
	}
	select {
	case err := <-res:
		return err
	case <-c.done:
		select {
		case err := <-res:
			return err
		default:
			return errors.ErrClosed
		}
	}
}

func (c *Connection) run() {
	defer close(c.done)
	for c.state != Closed {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.heartbeat.C():
			c.sendPing()
		case <-c.warn.C():
			c.warn.fired()
			c.onWarnTimeout()
		case <-c.fail.C():
			c.fail.fired()
			c.onFailTimeout()
		case <-c.retry.C():
			c.retry.fired()
			c.onRetryWindow()
		case <-c.idle.C():
			c.idle.fired()
			c.onIdle()
		}
	}
}

// setState applies a transition from the table and publishes it.
func (c *Connection) setState(to State, reason string) error {
	from := c.state
	if err := checkTransition(from, to); err != nil {
		c.logger.Warn().Err(err).Str("reason", reason).Msg("Rejected state transition")
		return err
	}
	c.state = to

	c.mu.Lock()
	c.snap.State = to
	c.mu.Unlock()

	c.mgr.metrics.Transition(from.String(), to.String())
	c.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Msg("Connection state changed")
	return nil
}

// attach performs the handshake on a new transport. The connection is
// Connected once the ack frame is written.
func (c *Connection) attach(t Transport) error {
	if c.state == Closed {
		return errors.ErrClosed
	}
	if c.state.Live() {
		c.disconnect("replaced by a new transport")
	}
	if c.state != Connecting {
		if err := c.setState(Connecting, "client resume"); err != nil {
			return err
		}
	}
	c.retry.stop()
	c.idle.stop()

	c.transport = t
	c.mu.Lock()
	c.snap.Remote = t.RemoteAddr()
	c.mu.Unlock()

	now := time.Now()
	if err := t.Send(protocol.Ack(c.id, "", now)); err != nil {
		terr := errors.NewTransportError(c.id, "handshake", err)
		c.disconnect(terr.Error())
		return terr
	}

	if err := c.setState(Connected, "handshake acknowledged"); err != nil {
		return err
	}
	c.backoff.Reset()
	c.pingID = ""
	c.heard(now)
	c.touch()
	c.mu.Lock()
	c.snap.FallbackReason = ""
	c.mu.Unlock()
	// A fallback signal queued while polling no longer applies.
	if n := c.queue.DiscardControl(protocol.TypeFallback); n > 0 {
		c.logger.Debug().Int("frames", n).Msg("Discarded stale fallback signal")
	}

	c.heartbeat.start(c.cfg.HeartbeatInterval)
	c.startDrain(t)
	return nil
}

// disconnect detaches the transport and starts the backoff window.
func (c *Connection) disconnect(reason string) {
	if err := c.setState(Disconnected, reason); err != nil {
		return
	}
	c.detach()
	c.heartbeat.stop()
	c.warn.stop()
	c.fail.stop()
	c.pingID = ""

	c.retry.arm(c.backoff.Next())
	c.idle.arm(c.cfg.MaxIdleDisconnected)
}

func (c *Connection) detach() {
	if c.transport != nil {
		_ = c.transport.Close()
	}
	c.stopDrain()
	c.transport = nil
}

// transportFailed handles a read, write or ping error from the current transport.
func (c *Connection) transportFailed(t Transport, op string, err error) {
	if t != c.transport || !(c.state.Live() || c.state == Connecting) {
		return
	}
	terr := errors.NewTransportError(c.id, op, err)
	c.logger.Warn().Err(err).Str("operation", op).Msg("Transport failed")
	c.disconnect(terr.Error())
}

// heard records a heartbeat and restarts the silence timers.
func (c *Connection) heard(at time.Time) {
	c.warn.arm(c.cfg.HeartbeatWarnTimeout)
	c.fail.arm(c.cfg.HeartbeatFailTimeout)
	c.mu.Lock()
	c.snap.LastHeartbeat = at
	c.mu.Unlock()
}

func (c *Connection) sendPing() {
	if !c.state.Live() {
		return
	}
	if c.pingID != "" {
		c.quality.lost()
		c.publishQuality()
	}

	now := time.Now()
	c.pingSeq++
	c.pingID = strconv.FormatUint(c.pingSeq, 10)
	c.pingSent = now
	if err := c.transport.Send(protocol.Ping(c.pingID, now)); err != nil {
		c.transportFailed(c.transport, "ping", err)
	}
}

// onPong handles a heartbeat answer. An empty id answers the outstanding ping.
func (c *Connection) onPong(id string) {
	if !c.state.Live() {
		return
	}
	now := time.Now()
	if c.pingID != "" && (id == "" || id == c.pingID) {
		rtt := now.Sub(c.pingSent)
		c.quality.observe(rtt)
		c.mgr.metrics.HeartbeatRTT(rtt.Seconds())
		c.pingID = ""
	}
	c.heard(now)
	c.publishQuality()

	if c.state == Degraded {
		_ = c.setState(Connected, "heartbeat resumed")
	}
}

func (c *Connection) publishQuality() {
	c.qualityBits.Store(math.Float64bits(c.quality.score()))
	c.mu.Lock()
	c.snap.RTTMillis = float64(c.quality.rtt) / float64(time.Millisecond)
	c.mu.Unlock()
}

func (c *Connection) onWarnTimeout() {
	if c.state == Connected {
		_ = c.setState(Degraded, "heartbeat silent past warn timeout")
	}
}

func (c *Connection) onFailTimeout() {
	if c.state.Live() || c.state == Connecting {
		c.disconnect("heartbeat timeout")
	}
}

// onRetryWindow runs when a backoff window elapses without a resume. Each
// window counts as a failed reconnect attempt.
func (c *Connection) onRetryWindow() {
	if c.state != Disconnected {
		return
	}
	if c.backoff.ShouldFallback() {
		c.enterFallback("reconnect failed " + strconv.Itoa(c.backoff.Attempts()) + " times")
		return
	}
	c.retry.arm(c.backoff.Next())
}

func (c *Connection) enterFallback(reason string) {
	if err := c.setState(FallbackPolling, reason); err != nil {
		return
	}
	c.mu.Lock()
	c.snap.FallbackReason = reason
	c.mu.Unlock()

	c.queue.PushControl(protocol.Fallback(reason, time.Now()))
	c.mgr.metrics.Fallback()
	c.logger.Warn().Str("reason", reason).Msg("Connection switched to fallback polling")
}

// touch records client activity. While detached it restarts the idle expiry.
func (c *Connection) touch() {
	c.mu.Lock()
	c.snap.LastActivity = time.Now()
	c.mu.Unlock()

	if c.state == Disconnected || c.state == FallbackPolling {
		c.idle.arm(c.cfg.MaxIdleDisconnected)
	}
}

func (c *Connection) onIdle() {
	if c.state == Disconnected || c.state == FallbackPolling {
		c.close("idle past max_idle_disconnected")
	}
}

// close destroys the connection: transport, drain and timers stop and every
// room membership is pruned before it returns.
func (c *Connection) close(reason string) {
	if c.state == Closed {
		return
	}
	_ = c.setState(Closed, reason)
	c.detach()
	c.heartbeat.stop()
	c.warn.stop()
	c.fail.stop()
	c.retry.stop()
	c.idle.stop()

	c.mgr.rooms.RemoveConnection(c.id)
	c.mgr.forget(c, reason)
}

// drainQueue removes every queued frame while no transport is draining.
func (c *Connection) drainQueue() []protocol.Envelope {
	if c.state.Live() {
		return nil
	}
	items := c.queue.Drain()
	frames := make([]protocol.Envelope, 0, len(items))
	for _, it := range items {
		frames = append(frames, it.Envelope())
	}
	return frames
}

func (c *Connection) startDrain(t Transport) {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.drainStop, c.drainDone = stop, done
	go c.drain(t, stop, done)
}

func (c *Connection) stopDrain() {
	if c.drainStop == nil {
		return
	}
	close(c.drainStop)
	<-c.drainDone
	c.drainStop, c.drainDone = nil, nil
}

// drain writes queued items in order: peek, then write and ack. It runs
// only while a transport is attached.
func (c *Connection) drain(t Transport, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		it, ok := c.queue.Peek()
		if !ok {
			select {
			case <-stop:
				return
			case <-c.queue.Notify():
			}
			continue
		}

		if err := c.write(t, it); err != nil {
			select {
			case c.inbox <- func() { c.transportFailed(t, "write", err) }:
			case <-stop:
			}
			return
		}
	}
}

// write sends one item and acks it. Batches go out in chunks scaled by
// quality and every chunk is acked as soon as it is written, so a failure
// part way through leaves only the unsent tail queued.
func (c *Connection) write(t Transport, it queue.Item) error {
	if it.Control != nil {
		if err := t.Send(*it.Control); err != nil {
			return err
		}
		c.queue.Ack(it.ID)
		return nil
	}
	for _, part := range it.Batch.Split(chunkSize(it.Batch.Len(), c.Quality())) {
		if err := t.Send(protocol.FromBatch(part)); err != nil {
			return err
		}
		c.queue.AckThrough(it.ID, part.Last())
	}
	return nil
}

func chunkSize(n int, q float64) int {
	return max(1, int(math.Ceil(float64(n)*q)))
}
