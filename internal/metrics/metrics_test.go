package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventEmitted("metric.sample")
		m.EventRejected("topic")
		m.BatchDispatched("metric.sample", 10)
		m.Coalesced(3)
		m.QueueOverflow(1, 1)
		m.Transition("connected", "degraded")
		m.HeartbeatRTT(0.01)
		m.Fallback()
		m.Rooms(4)
		m.Ingested("nats", "ok")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()

	m.EventEmitted("metric.sample")
	m.EventEmitted("metric.sample")
	m.Coalesced(5)
	m.Coalesced(0)
	m.QueueOverflow(200, 1)
	m.Fallback()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsEmitted.WithLabelValues("metric.sample")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.coalesced))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.evicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks))
}

func TestTransitionGauges(t *testing.T) {
	m := New()

	m.Transition("", "connecting")
	m.Transition("connecting", "connected")
	m.Transition("connected", "disconnected")
	m.Transition("disconnected", "")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("connecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connections.WithLabelValues("disconnected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("connected", "disconnected")))
}

func TestHandlerExposesStreamMetrics(t *testing.T) {
	m := New()
	m.BatchDispatched("agent.status_changed", 7)
	m.Rooms(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "swarmcast_batching_batches_total"))
	assert.True(t, strings.Contains(body, "swarmcast_rooms_current 3"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
