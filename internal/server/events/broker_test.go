package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/pkg/errors"
)

// mockSink records submitted events and stamps per-topic sequences.
type mockSink struct {
	mu     sync.Mutex
	seq    map[string]uint64
	events []Event
}

func newMockSink() *mockSink {
	return &mockSink{seq: make(map[string]uint64)}
}

func (m *mockSink) Submit(e Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[e.Topic]++
	e.Sequence = m.seq[e.Topic]
	m.events = append(m.events, e)
	return e, nil
}

func (m *mockSink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func newTestBroker(sink Sink) *Broker {
	logger := zerolog.Nop()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewBroker(sink, &logger, WithClock(func() time.Time { return fixed }))
}

func TestBroker_Emit(t *testing.T) {
	sink := newMockSink()
	b := newTestBroker(sink)

	require.NoError(t, b.Emit("agent-7", MetricSample, map[string]float64{"cpu": 0.4}))
	require.NoError(t, b.Emit("agent-7", MetricSample, nil))

	got := sink.Events()
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"cpu":0.4}`, string(got[0].Payload))
	assert.Equal(t, `{}`, string(got[1].Payload))
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, uint64(2), got[1].Sequence)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, BrokerStats{Emitted: 2}, b.Stats())
}

func TestBroker_EmitRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		kind    Kind
		payload any
	}{
		{"empty topic", "", MetricSample, nil},
		{"bad topic char", "agent 7", MetricSample, nil},
		{"unknown kind", "agent-7", KindUnknown, nil},
		{"invalid raw json", "agent-7", StatusChanged, json.RawMessage(`{"status":`)},
		{"unmarshalable payload", "agent-7", StatusChanged, map[string]any{"fn": func() {}}},
	}

	sink := newMockSink()
	b := newTestBroker(sink)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Emit(tt.topic, tt.kind, tt.payload)
			require.Error(t, err)
			assert.True(t, errors.IsMalformedEvent(err), "expected malformed event, got %v", err)
		})
	}

	assert.Empty(t, sink.Events())
	assert.Equal(t, uint64(len(tests)), b.Stats().Rejected)
}

func TestBroker_RejectionDoesNotAffectOtherTopics(t *testing.T) {
	sink := newMockSink()
	b := newTestBroker(sink)

	require.Error(t, b.Emit("agent 1", StatusChanged, nil))
	require.NoError(t, b.Emit("agent-2", StatusChanged, map[string]string{"status": "idle"}))

	got := sink.Events()
	require.Len(t, got, 1)
	assert.Equal(t, "agent-2", got[0].Topic)
}

func TestBroker_PublishKeepsTimestampAndIgnoresSequence(t *testing.T) {
	sink := newMockSink()
	b := newTestBroker(sink)

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e, err := b.Publish(Event{Topic: "system", Kind: SystemAlert, Sequence: 99, Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Sequence)
	assert.Equal(t, ts, e.Timestamp)
}

func TestBroker_ConcurrentEmit(t *testing.T) {
	sink := newMockSink()
	b := newTestBroker(sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Emit("agent-7", MetricSample, j)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sink.Events(), 800)
	assert.Equal(t, uint64(800), b.Stats().Emitted)
}
