package table

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/swarmcast/pkg/client"
)

func TestSessionsToTableData(t *testing.T) {
	sessions := []client.SessionInfo{{
		ID:        "s1",
		State:     "degraded",
		Topics:    []string{"agent-*", "system"},
		Queue:     client.QueueStats{Items: 12, Evicted: 3, Dropped: 1},
		Quality:   0.5,
		RTTMillis: 42.31,
	}}

	narrow := SessionsToTableData(sessions, false)
	assert.Len(t, narrow.Headers, 8)
	assert.Len(t, narrow.ColumnAlignment, 8)
	assert.Equal(t, []string{"s1", "◐ degraded", "agent-*,system", "12", "3", "1", "0.50", "42.3ms"}, narrow.Rows[0])

	wide := SessionsToTableData(sessions, true)
	assert.Len(t, wide.Headers, 12)
	assert.Len(t, wide.Rows[0], 12)
	assert.Equal(t, "never", wide.Rows[0][10])
}

func TestEventRow(t *testing.T) {
	e := client.Event{
		Topic:     "agent-7",
		Kind:      "agent.status_changed",
		Sequence:  9,
		Payload:   json.RawMessage(`{"status":"busy"}`),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local),
	}
	assert.Equal(t, []string{"9", "agent-7", "agent.status_changed", "03:04:05", `{"status":"busy"}`}, EventRow(e))
	assert.Len(t, EventRow(e), len(EventHeaders))
}

func TestGapRow(t *testing.T) {
	row := GapRow(client.Gap{Topic: "agent-1", From: 3, To: 5, Recovered: 2, Lost: true})
	assert.Equal(t, "3-5", row[0])
	assert.Contains(t, row[4], "recovered 2")
	assert.Contains(t, row[4], "no longer retained")
}

func TestStateDisplay(t *testing.T) {
	tests := map[string]string{
		"connected":        "● connected",
		"fallback_polling": "◇ fallback_polling",
		"closed":           "○ closed",
		"bogus":            "? bogus",
	}
	for state, want := range tests {
		assert.Equal(t, want, StateDisplay(state), state)
	}
}

func TestFormatters(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "-", FormatRTT(0))
	assert.Equal(t, "1.5ms", FormatRTT(1.5))
	assert.Equal(t, "never", FormatAge(time.Time{}, now))
	assert.Equal(t, "3s ago", FormatAge(now.Add(-3*time.Second), now))
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
}
