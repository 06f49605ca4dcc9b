// Package events defines the event vocabulary shared by producers and the
// distribution layer, plus the Broker that validates producer input and
// hands accepted events to the batching engine.
//
// Events are immutable once stamped with a sequence number. Sequence numbers
// are strictly increasing per topic, which lets consumers detect gaps after a
// reconnection.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentstation/swarmcast/pkg/errors"
)

// Kind identifies the type of an event.
type Kind uint8

// Event kinds.
const (
	KindUnknown Kind = iota
	AgentCreated
	AgentDeleted
	StatusChanged
	TaskStarted
	TaskCompleted
	MetricSample
	SystemAlert
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	AgentCreated:  "agent.created",
	AgentDeleted:  "agent.deleted",
	StatusChanged: "agent.status_changed",
	TaskStarted:   "task.started",
	TaskCompleted: "task.completed",
	MetricSample:  "metric.sample",
	SystemAlert:   "system.alert",
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	return []Kind{AgentCreated, AgentDeleted, StatusChanged, TaskStarted, TaskCompleted, MetricSample, SystemAlert}
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known, non-zero kind.
func (k Kind) Valid() bool {
	return k > KindUnknown && int(k) < len(kindNames)
}

// LatencySensitive kinds bypass the batching window.
func (k Kind) LatencySensitive() bool {
	return k == SystemAlert
}

// Evictable kinds may be evicted from a full outbound queue.
// Every other kind is protected.
func (k Kind) Evictable() bool {
	return k == MetricSample || k == StatusChanged
}

// Coalescable kinds may be replaced by a newer sample when a pending buffer overflows.
func (k Kind) Coalescable() bool {
	return k == MetricSample
}

// ParseKind parses a wire name.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if i > 0 && name == s {
			return Kind(i), nil
		}
	}
	return KindUnknown, errors.NewMalformedEventError("", s, "unknown kind", nil)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.NewMalformedEventError("", k.String(), "unknown kind", nil)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a single stamped state change.
type Event struct {
	Topic     string          `json:"topic"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
}

// Batch is a non-empty run of events sharing a topic and kind, in sequence order.
type Batch struct {
	Topic  string
	Kind   Kind
	Events []Event
}

// NewBatch wraps a single event.
func NewBatch(e Event) Batch {
	return Batch{Topic: e.Topic, Kind: e.Kind, Events: []Event{e}}
}

// Len returns the number of events in the batch.
func (b Batch) Len() int {
	return len(b.Events)
}

// First returns the sequence of the first event.
func (b Batch) First() uint64 {
	if len(b.Events) == 0 {
		return 0
	}
	return b.Events[0].Sequence
}

// Last returns the sequence of the last event.
func (b Batch) Last() uint64 {
	if len(b.Events) == 0 {
		return 0
	}
	return b.Events[len(b.Events)-1].Sequence
}

// Split returns consecutive sub-batches of at most n events.
// The receiver's backing array is shared.
func (b Batch) Split(n int) []Batch {
	if n < 1 {
		n = 1
	}
	if len(b.Events) <= n {
		return []Batch{b}
	}
	out := make([]Batch, 0, (len(b.Events)+n-1)/n)
	for start := 0; start < len(b.Events); start += n {
		end := min(start+n, len(b.Events))
		out = append(out, Batch{Topic: b.Topic, Kind: b.Kind, Events: b.Events[start:end:end]})
	}
	return out
}
