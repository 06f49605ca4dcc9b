package adapters

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/swarmcast/internal/server/events"
)

type emitted struct {
	topic   string
	kind    events.Kind
	payload []byte
}

type recordingEmitter struct {
	calls []emitted
}

func (r *recordingEmitter) Emit(topic string, kind events.Kind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.calls = append(r.calls, emitted{topic: topic, kind: kind, payload: data})
	return nil
}

func TestSwarmTopicsAndKinds(t *testing.T) {
	rec := &recordingEmitter{}
	s := NewSwarm(rec)

	require.NoError(t, s.AgentCreated(AgentInfo{ID: "7", Name: "planner"}))
	require.NoError(t, s.AgentStatus("7", "idle", "busy"))
	require.NoError(t, s.Metric(Sample{AgentID: "7", Name: "cpu", Value: 0.5}))
	require.NoError(t, s.TaskStarted(TaskInfo{TaskID: "t1", AgentID: "7"}))
	require.NoError(t, s.TaskCompleted("t1", "7", 1500*time.Millisecond, nil))
	require.NoError(t, s.AgentDeleted("7"))
	require.NoError(t, s.Alert(AlertCritical, "scheduler", "queue saturated"))

	want := []struct {
		topic string
		kind  events.Kind
	}{
		{"agent-7", events.AgentCreated},
		{"agent-7", events.StatusChanged},
		{"agent-7", events.MetricSample},
		{"task-t1", events.TaskStarted},
		{"task-t1", events.TaskCompleted},
		{"agent-7", events.AgentDeleted},
		{"system", events.SystemAlert},
	}
	require.Len(t, rec.calls, len(want))
	for i, w := range want {
		assert.Equal(t, w.topic, rec.calls[i].topic, "call %d", i)
		assert.Equal(t, w.kind, rec.calls[i].kind, "call %d", i)
	}
	assert.JSONEq(t, `{"agent_id":"7","from":"idle","to":"busy"}`, string(rec.calls[1].payload))
	assert.JSONEq(t, `{"task_id":"t1","agent_id":"7","success":true,"duration_ms":1500}`, string(rec.calls[4].payload))
}

func TestTaskCompletedFailure(t *testing.T) {
	rec := &recordingEmitter{}
	s := NewSwarm(rec)

	require.NoError(t, s.TaskCompleted("t2", "", time.Second, errors.New("tool crashed")))

	var res TaskResult
	require.NoError(t, json.Unmarshal(rec.calls[0].payload, &res))
	assert.False(t, res.Success)
	assert.Equal(t, "tool crashed", res.Error)
}
