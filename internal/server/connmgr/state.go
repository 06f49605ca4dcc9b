package connmgr

import (
	"fmt"

	"github.com/agentstation/swarmcast/pkg/errors"
)

// State is the client-visible connection state.
type State uint8

// Connection states.
const (
	Connecting State = iota
	Connected
	Degraded
	Disconnected
	FallbackPolling
	Closed
)

var stateNames = [...]string{
	Connecting:      "connecting",
	Connected:       "connected",
	Degraded:        "degraded",
	Disconnected:    "disconnected",
	FallbackPolling: "fallback_polling",
	Closed:          "closed",
}

// String returns the state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// States returns every state in declaration order.
func States() []State {
	return []State{Connecting, Connected, Degraded, Disconnected, FallbackPolling, Closed}
}

// Live reports whether the state has an attached, usable transport.
func (s State) Live() bool {
	return s == Connected || s == Degraded
}

// transitions lists the legal moves out of each state.
var transitions = map[State][]State{
	Connecting:      {Connected, Disconnected, Closed},
	Connected:       {Degraded, Disconnected, Closed},
	Degraded:        {Connected, Disconnected, Closed},
	Disconnected:    {Connecting, FallbackPolling, Closed},
	FallbackPolling: {Connecting, Closed},
	Closed:          nil,
}

// ErrIllegalTransition is returned for a move the state machine does not allow.
var ErrIllegalTransition = errors.New("illegal state transition")

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
