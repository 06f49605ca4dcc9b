package events

import (
	"bytes"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/metrics"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Sink accepts validated events and stamps their sequence number.
// The batching engine is the production implementation.
type Sink interface {
	Submit(Event) (Event, error)
}

// Broker is the producer-facing entry point. It validates topic, kind and
// payload, stamps the timestamp and hands the event to its sink. Emit never
// blocks beyond the sink's bounded insertion.
type Broker struct {
	sink    Sink
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	emitted  atomic.Uint64
	rejected atomic.Uint64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithMetrics records emitted and rejected events.
func WithMetrics(m *metrics.Metrics) BrokerOption {
	return func(b *Broker) { b.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// NewBroker creates a broker that submits into sink.
func NewBroker(sink Sink, logger *zerolog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BrokerStats reports producer-side counters.
type BrokerStats struct {
	Emitted  uint64 `json:"emitted"`
	Rejected uint64 `json:"rejected"`
}

// Stats returns a snapshot of the broker counters.
func (b *Broker) Stats() BrokerStats {
	return BrokerStats{Emitted: b.emitted.Load(), Rejected: b.rejected.Load()}
}

// Emit publishes a payload on topic. A nil payload is sent as an empty
// object; json.RawMessage and []byte payloads must already be valid JSON.
// Invalid input is rejected with a MalformedEventError and affects no other
// topic.
func (b *Broker) Emit(topic string, kind Kind, payload any) error {
	raw, err := encodePayload(payload)
	if err != nil {
		return b.reject(errors.NewMalformedEventError(topic, kind.String(), "payload is not valid JSON", err))
	}
	_, err = b.Publish(Event{Topic: topic, Kind: kind, Payload: raw})
	return err
}

// Publish validates a pre-built event and submits it, returning the stamped
// event. A zero timestamp is replaced by the broker clock; any sequence set
// by the caller is ignored.
func (b *Broker) Publish(e Event) (Event, error) {
	if err := ValidateTopic(e.Topic); err != nil {
		return Event{}, b.reject(errors.NewMalformedEventError(e.Topic, e.Kind.String(), "invalid topic", err))
	}
	if !e.Kind.Valid() {
		return Event{}, b.reject(errors.NewMalformedEventError(e.Topic, e.Kind.String(), "unknown kind", nil))
	}
	if len(e.Payload) == 0 {
		e.Payload = json.RawMessage(`{}`)
	}
	if len(e.Payload) > constants.MaxPayloadBytes {
		return Event{}, b.reject(errors.NewMalformedEventError(e.Topic, e.Kind.String(), "payload too large", nil))
	}
	if !json.Valid(e.Payload) {
		return Event{}, b.reject(errors.NewMalformedEventError(e.Topic, e.Kind.String(), "payload is not valid JSON", nil))
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	e.Sequence = 0

	stamped, err := b.sink.Submit(e)
	if err != nil {
		return Event{}, err
	}

	b.emitted.Add(1)
	b.metrics.EventEmitted(e.Kind.String())
	return stamped, nil
}

func (b *Broker) reject(err *errors.MalformedEventError) error {
	b.rejected.Add(1)
	b.metrics.EventRejected(err.Reason)
	b.logger.Warn().
		Str("topic", err.Topic).
		Str("kind", err.Kind).
		Str("reason", err.Reason).
		Msg("Rejected malformed event")
	return err
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return bytes.Clone(p), nil
	case []byte:
		return bytes.Clone(p), nil
	default:
		return json.Marshal(p)
	}
}
