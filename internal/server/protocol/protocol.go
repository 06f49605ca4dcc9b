// Package protocol defines the JSON envelope exchanged with dashboard
// clients over websocket, SSE and polling.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Type is the envelope discriminator.
type Type string

// Server to client types.
const (
	TypeEvent    Type = "event"
	TypeBatch    Type = "batch"
	TypePing     Type = "ping"
	TypeAck      Type = "ack"
	TypeFallback Type = "fallback"
	TypeError    Type = "error"
)

// Client to server types.
const (
	TypeSubscribe   Type = "subscribe"
	TypeUnsubscribe Type = "unsubscribe"
	TypePong        Type = "pong"
)

// Envelope is a single frame. Fields not relevant to a type are omitted.
type Envelope struct {
	Type      Type            `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Kind      events.Kind     `json:"kind,omitempty"`
	Sequence  uint64          `json:"sequence,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Events    []events.Event  `json:"events,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ID        string          `json:"id,omitempty"`
	Session   string          `json:"session,omitempty"`
}

// IsServerType reports whether t is sent by the server.
func (t Type) IsServerType() bool {
	switch t {
	case TypeEvent, TypeBatch, TypePing, TypeAck, TypeFallback, TypeError:
		return true
	}
	return false
}

// IsClientType reports whether t is sent by a client.
func (t Type) IsClientType() bool {
	switch t {
	case TypeSubscribe, TypeUnsubscribe, TypePong:
		return true
	}
	return false
}

// FromBatch converts a batch to its wire frame. A single latency-sensitive
// event is sent as an event frame, anything else as a batch frame.
func FromBatch(b events.Batch) Envelope {
	if b.Len() == 1 && b.Kind.LatencySensitive() {
		e := b.Events[0]
		return Envelope{
			Type:      TypeEvent,
			Topic:     e.Topic,
			Kind:      e.Kind,
			Sequence:  e.Sequence,
			Payload:   e.Payload,
			Timestamp: e.Timestamp,
		}
	}
	return Envelope{
		Type:      TypeBatch,
		Topic:     b.Topic,
		Kind:      b.Kind,
		Sequence:  b.Last(),
		Events:    b.Events,
		Timestamp: b.Events[b.Len()-1].Timestamp,
	}
}

// Ping creates a heartbeat probe.
func Ping(id string, at time.Time) Envelope {
	return Envelope{Type: TypePing, ID: id, Timestamp: at}
}

// Ack acknowledges a handshake or a subscription change.
func Ack(session, topic string, at time.Time) Envelope {
	return Envelope{Type: TypeAck, Session: session, Topic: topic, Timestamp: at}
}

// Fallback tells the client to switch to polling.
func Fallback(reason string, at time.Time) Envelope {
	return Envelope{Type: TypeFallback, Reason: reason, Timestamp: at}
}

// Error reports a rejected client command.
func Error(topic, reason string, at time.Time) Envelope {
	return Envelope{Type: TypeError, Topic: topic, Reason: reason, Timestamp: at}
}

// EventCount returns how many events the frame carries.
func (e Envelope) EventCount() int {
	switch e.Type {
	case TypeBatch:
		return len(e.Events)
	case TypeEvent:
		return 1
	}
	return 0
}

// Encode marshals an envelope.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a frame and checks that its type is known.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errors.WrapValidation("envelope", err)
	}
	if !env.Type.IsServerType() && !env.Type.IsClientType() {
		return Envelope{}, errors.NewValidationError("type", string(env.Type), "unknown envelope type")
	}
	return env, nil
}

// DecodeCommand parses a client frame and validates its fields.
func DecodeCommand(data []byte) (Envelope, error) {
	env, err := Decode(data)
	if err != nil {
		return Envelope{}, err
	}
	if !env.Type.IsClientType() {
		return Envelope{}, errors.NewValidationError("type", string(env.Type), "not a client command")
	}
	if (env.Type == TypeSubscribe || env.Type == TypeUnsubscribe) && env.Topic == "" {
		return Envelope{}, errors.NewValidationError("topic", "", "topic is required")
	}
	return env, nil
}
