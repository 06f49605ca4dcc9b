// Package batching coalesces high-rate events into per-topic batches.
//
// Each topic has a shard holding its sequence counter and pending events
// under the shard's own mutex, so unrelated topics never contend. Pending
// events flush on a tick of MaxBatchDelay or as soon as MaxBatchSize are
// waiting. A flush splits the pending run into same-kind batches and hands
// them to the topic's dispatch lane. Every topic maps to exactly one lane and
// each lane is drained by one goroutine, so per-topic order holds from Submit
// to the Router.
//
// Latency-sensitive events skip the window: earlier pending events of the
// topic are flushed first and the event follows as a single-event batch.
package batching

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/metrics"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Router receives dispatched batches in per-topic order.
type Router interface {
	Deliver(events.Batch)
}

// Recorder observes dispatched batches before routing. The replay log is the
// production implementation.
type Recorder interface {
	Append(events.Batch)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder appends every dispatched batch to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics records batch and coalesce counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

type shard struct {
	mu      sync.Mutex
	topic   string
	lane    *lane
	seq     uint64
	pending []events.Event
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      Config
	router   Router
	recorder Recorder
	logger   *zerolog.Logger
	metrics  *metrics.Metrics

	shards sync.Map // topic -> *shard
	lanes  []*lane

	quality atomic.Uint64 // float64 bits

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	stopTick  chan struct{}
	lanesDone chan struct{}
	tickWG    sync.WaitGroup
	laneWG    sync.WaitGroup

	submitted  atomic.Uint64
	batches    atomic.Uint64
	dispatched atomic.Uint64
	coalesced  atomic.Uint64
	deferred   atomic.Uint64
}

// NewEngine creates an engine delivering to router. Call Start or Run before
// relying on time-based flushes.
func NewEngine(cfg Config, router Router, logger *zerolog.Logger, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:       cfg,
		router:    router,
		logger:    logger,
		lanes:     make([]*lane, cfg.Lanes),
		stopTick:  make(chan struct{}),
		lanesDone: make(chan struct{}),
	}
	for i := range e.lanes {
		e.lanes[i] = newLane(cfg.LaneBuffer)
	}
	e.quality.Store(math.Float64bits(1))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Start launches the flush tick and the dispatch lanes. It is idempotent.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		for _, l := range e.lanes {
			e.laneWG.Add(1)
			go e.runLane(l)
		}
		e.tickWG.Add(1)
		go e.runTick()
		e.logger.Info().
			Int("max_batch_size", e.cfg.MaxBatchSize).
			Dur("max_batch_delay", e.cfg.MaxBatchDelay).
			Int("lanes", e.cfg.Lanes).
			Msg("Batching engine started")
	})
}

// Run starts the engine and closes it when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.Start()
	<-ctx.Done()
	e.Close()
	return nil
}

// Close flushes every pending event, dispatches everything queued on the
// lanes and stops all goroutines. Submit fails with ErrClosed afterwards.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.Start()
		e.closed.Store(true)

		close(e.stopTick)
		e.tickWG.Wait()

		e.shards.Range(func(_, v any) bool {
			s := v.(*shard)
			s.mu.Lock()
			e.flushLocked(s, true)
			s.mu.Unlock()
			return true
		})

		close(e.lanesDone)
		e.laneWG.Wait()
		e.logger.Info().Uint64("dispatched", e.dispatched.Load()).Msg("Batching engine stopped")
	})
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// Submit stamps the next sequence number for the event's topic and buffers
// it. It never blocks on delivery.
func (e *Engine) Submit(ev events.Event) (events.Event, error) {
	if e.closed.Load() {
		return events.Event{}, errors.ErrClosed
	}

	s := e.shard(ev.Topic)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Close flushes each shard under its lock after setting closed.
	if e.closed.Load() {
		return events.Event{}, errors.ErrClosed
	}

	s.seq++
	ev.Sequence = s.seq
	e.submitted.Add(1)

	if ev.Kind.LatencySensitive() {
		batches := e.split(s.pending)
		batches = append(batches, events.NewBatch(ev))
		s.lane.offer(batches, true)
		s.pending = nil
		return ev, nil
	}

	s.pending = append(s.pending, ev)
	if len(s.pending) >= e.batchSize() {
		if !e.flushLocked(s, false) {
			e.deferred.Add(1)
		}
	}
	e.enforceCap(s)
	return ev, nil
}

// Flush immediately flushes topic. It reports false if the lane refused.
func (e *Engine) Flush(topic string) bool {
	v, ok := e.shards.Load(topic)
	if !ok {
		return true
	}
	s := v.(*shard)
	s.mu.Lock()
	defer s.mu.Unlock()
	return e.flushLocked(s, false)
}

// Latest returns the last sequence assigned on topic.
func (e *Engine) Latest(topic string) uint64 {
	v, ok := e.shards.Load(topic)
	if !ok {
		return 0
	}
	s := v.(*shard)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SetQuality scales batching to the connection quality q in [0,1]. Lower
// quality means smaller batches flushed more often.
func (e *Engine) SetQuality(q float64) {
	if math.IsNaN(q) {
		return
	}
	q = min(max(q, 0), 1)
	e.quality.Store(math.Float64bits(q))
}

// Quality returns the current quality factor.
func (e *Engine) Quality() float64 {
	return math.Float64frombits(e.quality.Load())
}

// batchSize is the effective maximum batch size.
func (e *Engine) batchSize() int {
	return max(1, int(math.Ceil(float64(e.cfg.MaxBatchSize)*e.Quality())))
}

// flushDelay is the effective flush interval.
func (e *Engine) flushDelay() time.Duration {
	d := time.Duration(float64(e.cfg.MaxBatchDelay) * e.Quality())
	return max(d, e.cfg.MaxBatchDelay/4)
}

func (e *Engine) shard(topic string) *shard {
	if v, ok := e.shards.Load(topic); ok {
		return v.(*shard)
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	s := &shard{topic: topic, lane: e.lanes[h.Sum32()%uint32(len(e.lanes))]}
	v, _ := e.shards.LoadOrStore(topic, s)
	return v.(*shard)
}

// flushLocked hands the shard's pending events to its lane. Must hold s.mu.
func (e *Engine) flushLocked(s *shard, force bool) bool {
	if len(s.pending) == 0 {
		return true
	}
	if !s.lane.offer(e.split(s.pending), force) {
		return false
	}
	s.pending = nil
	return true
}

// split cuts a pending run into maximal same-kind runs of at most the
// effective batch size.
func (e *Engine) split(pending []events.Event) []events.Batch {
	if len(pending) == 0 {
		return nil
	}
	size := e.batchSize()
	var out []events.Batch
	start := 0
	for i := 1; i <= len(pending); i++ {
		if i < len(pending) && pending[i].Kind == pending[start].Kind {
			continue
		}
		run := events.Batch{Topic: pending[start].Topic, Kind: pending[start].Kind, Events: pending[start:i:i]}
		out = append(out, run.Split(size)...)
		start = i
	}
	return out
}

// enforceCap coalesces metric samples while the pending buffer exceeds
// MaxPending: the oldest pending sample is dropped in favour of a newer one.
// Other kinds are kept above the cap. Must hold s.mu.
func (e *Engine) enforceCap(s *shard) {
	over := len(s.pending) - e.cfg.MaxPending
	if over <= 0 {
		return
	}

	// Only samples with a newer sample behind them may go.
	lastMetric := -1
	for i := len(s.pending) - 1; i >= 0; i-- {
		if s.pending[i].Kind.Coalescable() {
			lastMetric = i
			break
		}
	}

	removed := 0
	kept := s.pending[:0]
	for i, ev := range s.pending {
		if removed < over && i < lastMetric && ev.Kind.Coalescable() {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	clear(s.pending[len(kept):])
	s.pending = kept

	if removed > 0 {
		e.coalesced.Add(uint64(removed))
		e.metrics.Coalesced(removed)
		e.logger.Debug().
			Str("topic", s.topic).
			Int("coalesced", removed).
			Int("pending", len(s.pending)).
			Msg("Pending buffer over cap, coalesced metric samples")
	}
}

func (e *Engine) runTick() {
	defer e.tickWG.Done()
	timer := time.NewTimer(e.flushDelay())
	defer timer.Stop()

	for {
		select {
		case <-e.stopTick:
			return
		case <-timer.C:
			e.flushAll()
			timer.Reset(e.flushDelay())
		}
	}
}

func (e *Engine) flushAll() {
	e.shards.Range(func(_, v any) bool {
		s := v.(*shard)
		s.mu.Lock()
		if !e.flushLocked(s, false) {
			e.deferred.Add(1)
			e.enforceCap(s)
		}
		s.mu.Unlock()
		return true
	})
}

func (e *Engine) runLane(l *lane) {
	defer e.laneWG.Done()
	for {
		select {
		case <-l.wake:
			e.dispatch(l.take())
		case <-e.lanesDone:
			e.dispatch(l.take())
			return
		}
	}
}

func (e *Engine) dispatch(batches []events.Batch) {
	for _, b := range batches {
		if e.recorder != nil {
			e.recorder.Append(b)
		}
		e.router.Deliver(b)
		e.batches.Add(1)
		e.dispatched.Add(uint64(b.Len()))
		e.metrics.BatchDispatched(b.Kind.String(), b.Len())
	}
}

// Stats reports engine counters.
type Stats struct {
	Topics     int     `json:"topics"`
	Pending    int     `json:"pending"`
	Lanes      []int   `json:"lanes"`
	Submitted  uint64  `json:"submitted"`
	Batches    uint64  `json:"batches"`
	Dispatched uint64  `json:"dispatched"`
	Coalesced  uint64  `json:"coalesced"`
	Deferred   uint64  `json:"deferred"`
	Quality    float64 `json:"quality"`
	BatchSize  int     `json:"batch_size"`
	FlushDelay string  `json:"flush_delay"`
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	st := Stats{
		Submitted:  e.submitted.Load(),
		Batches:    e.batches.Load(),
		Dispatched: e.dispatched.Load(),
		Coalesced:  e.coalesced.Load(),
		Deferred:   e.deferred.Load(),
		Quality:    e.Quality(),
		BatchSize:  e.batchSize(),
		FlushDelay: e.flushDelay().String(),
	}
	e.shards.Range(func(_, v any) bool {
		s := v.(*shard)
		s.mu.Lock()
		st.Pending += len(s.pending)
		s.mu.Unlock()
		st.Topics++
		return true
	})
	for _, l := range e.lanes {
		st.Lanes = append(st.Lanes, l.len())
	}
	return st
}
