package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/pkg/errors"
)

func TestKindClassification(t *testing.T) {
	tests := []struct {
		kind        Kind
		latency     bool
		evictable   bool
		coalescable bool
	}{
		{AgentCreated, false, false, false},
		{AgentDeleted, false, false, false},
		{StatusChanged, false, true, false},
		{TaskStarted, false, false, false},
		{TaskCompleted, false, false, false},
		{MetricSample, false, true, true},
		{SystemAlert, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.True(t, tt.kind.Valid())
			assert.Equal(t, tt.latency, tt.kind.LatencySensitive())
			assert.Equal(t, tt.evictable, tt.kind.Evictable())
			assert.Equal(t, tt.coalescable, tt.kind.Coalescable())
		})
	}
	assert.Len(t, Kinds(), len(tests))
}

func TestKindText(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("model.added")
	assert.True(t, errors.IsMalformedEvent(err))

	_, err = KindUnknown.MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "kind(42)", Kind(42).String())
	assert.False(t, Kind(42).Valid())
}

func TestEventJSON(t *testing.T) {
	e := Event{Topic: "agent-7", Kind: StatusChanged, Payload: json.RawMessage(`{"status":"busy"}`), Sequence: 3}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"agent.status_changed"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, StatusChanged, decoded.Kind)
	assert.Equal(t, uint64(3), decoded.Sequence)

	err = json.Unmarshal([]byte(`{"topic":"a","kind":"nope"}`), &decoded)
	assert.Error(t, err)
}

func TestBatch(t *testing.T) {
	var evs []Event
	for i := uint64(1); i <= 7; i++ {
		evs = append(evs, Event{Topic: "agent-7", Kind: MetricSample, Sequence: i})
	}
	b := Batch{Topic: "agent-7", Kind: MetricSample, Events: evs}

	assert.Equal(t, 7, b.Len())
	assert.Equal(t, uint64(1), b.First())
	assert.Equal(t, uint64(7), b.Last())

	parts := b.Split(3)
	require.Len(t, parts, 3)
	assert.Equal(t, []int{3, 3, 1}, []int{parts[0].Len(), parts[1].Len(), parts[2].Len()})
	assert.Equal(t, uint64(4), parts[1].First())
	assert.Equal(t, uint64(7), parts[2].Last())

	assert.Len(t, b.Split(0), 7)
	assert.Len(t, b.Split(50), 1)
	assert.Zero(t, Batch{}.First())
	assert.Zero(t, Batch{}.Last())

	single := NewBatch(evs[0])
	assert.Equal(t, 1, single.Len())
	assert.Equal(t, MetricSample, single.Kind)
}
