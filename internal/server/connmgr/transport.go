package connmgr

import (
	"time"

	"github.com/agentstation/swarmcast/internal/server/protocol"
)

// Transport is one attached client channel. Send must be safe for concurrent
// use and bounded by a write deadline. Close must unblock a pending Send.
type Transport interface {
	Send(protocol.Envelope) error
	Close() error
	RemoteAddr() string
}

// timer wraps a one-shot time.Timer whose channel is nil while unarmed, so it
// can sit in a select unconditionally.
type timer struct {
	t *time.Timer
}

func (x *timer) arm(d time.Duration) {
	x.stop()
	x.t = time.NewTimer(d)
}

func (x *timer) stop() {
	if x.t != nil {
		x.t.Stop()
		x.t = nil
	}
}

// fired marks the timer unarmed after its channel delivered.
func (x *timer) fired() {
	x.t = nil
}

func (x *timer) C() <-chan time.Time {
	if x.t == nil {
		return nil
	}
	return x.t.C
}

func (x *timer) armed() bool {
	return x.t != nil
}

// ticker is the periodic counterpart of timer.
type ticker struct {
	t *time.Ticker
}

func (x *ticker) start(d time.Duration) {
	x.stop()
	x.t = time.NewTicker(d)
}

func (x *ticker) stop() {
	if x.t != nil {
		x.t.Stop()
		x.t = nil
	}
}

func (x *ticker) C() <-chan time.Time {
	if x.t == nil {
		return nil
	}
	return x.t.C
}
