// Package metrics holds the Prometheus instrumentation for the event stream.
//
// A nil *Metrics is valid and records nothing, so components accept one
// without checking whether instrumentation is enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swarmcast"

// Metrics holds every stream collector registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsEmitted  *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	batches        *prometheus.CounterVec
	batchSize      prometheus.Histogram
	coalesced      prometheus.Counter
	evicted        prometheus.Counter
	dropped        prometheus.Counter
	connections    *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	heartbeatRTT   prometheus.Histogram
	fallbacks      prometheus.Counter
	rooms          prometheus.Gauge
	ingested       *prometheus.CounterVec
}

// New creates the stream metrics on a fresh registry with Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Events accepted from producers",
		}, []string{"kind"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "rejected_total",
			Help:      "Events rejected at emit as malformed",
		}, []string{"reason"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batching",
			Name:      "batches_total",
			Help:      "Batches dispatched to routing",
		}, []string{"kind"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batching",
			Name:      "batch_size",
			Help:      "Events per dispatched batch",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batching",
			Name:      "coalesced_total",
			Help:      "Metric samples replaced by a newer sample on overflow",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "evicted_total",
			Help:      "Queued events evicted to make room",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Low-priority events dropped because the queue was full",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "current",
			Help:      "Connections by state",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "transitions_total",
			Help:      "Connection state transitions",
		}, []string{"from", "to"}),
		heartbeatRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "heartbeat_rtt_seconds",
			Help:      "Ping to pong round trip",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "fallbacks_total",
			Help:      "Connections switched to fallback polling",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "current",
			Help:      "Rooms with at least one member",
		}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Messages received from external producers",
		}, []string{"source", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsEmitted,
		m.eventsRejected,
		m.batches,
		m.batchSize,
		m.coalesced,
		m.evicted,
		m.dropped,
		m.connections,
		m.transitions,
		m.heartbeatRTT,
		m.fallbacks,
		m.rooms,
		m.ingested,
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// EventEmitted counts an accepted event.
func (m *Metrics) EventEmitted(kind string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(kind).Inc()
}

// EventRejected counts a malformed event.
func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(reason).Inc()
}

// BatchDispatched records a dispatched batch and its size.
func (m *Metrics) BatchDispatched(kind string, size int) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(kind).Inc()
	m.batchSize.Observe(float64(size))
}

// Coalesced counts metric samples replaced on overflow.
func (m *Metrics) Coalesced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.coalesced.Add(float64(n))
}

// QueueOverflow records evictions and drops from an outbound queue.
func (m *Metrics) QueueOverflow(evicted, dropped int) {
	if m == nil {
		return
	}
	if evicted > 0 {
		m.evicted.Add(float64(evicted))
	}
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
	}
}

// Transition records a connection state change and moves the state gauges.
// An empty from means the connection was just created; an empty to means it was destroyed.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	if from != "" {
		m.connections.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.connections.WithLabelValues(to).Inc()
	}
	if from != "" && to != "" {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}

// HeartbeatRTT observes a round trip in seconds.
func (m *Metrics) HeartbeatRTT(seconds float64) {
	if m == nil {
		return
	}
	m.heartbeatRTT.Observe(seconds)
}

// Fallback counts a connection entering fallback polling.
func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// Rooms sets the current room count.
func (m *Metrics) Rooms(n int) {
	if m == nil {
		return
	}
	m.rooms.Set(float64(n))
}

// Ingested counts a message from an external producer source.
func (m *Metrics) Ingested(source, result string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(source, result).Inc()
}
