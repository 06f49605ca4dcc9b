package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Transport writes envelopes as Server-Sent Events on one response.
type Transport struct {
	w         http.ResponseWriter
	rc        *http.ResponseController
	remote    string
	writeWait time.Duration

	mu       sync.Mutex
	finished bool

	done      chan struct{}
	closeOnce sync.Once
}

func newTransport(w http.ResponseWriter, r *http.Request, writeWait time.Duration) *Transport {
	return &Transport{
		w:         w,
		rc:        http.NewResponseController(w),
		remote:    r.RemoteAddr,
		writeWait: writeWait,
		done:      make(chan struct{}),
	}
}

// Send writes one envelope. The event name is the frame type and, for event
// and batch frames, the id is the last sequence.
func (t *Transport) Send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return errors.ErrClosed
	}

	_ = t.rc.SetWriteDeadline(time.Now().Add(t.writeWait))
	if _, err := fmt.Fprintf(t.w, "event: %s\n", env.Type); err != nil {
		return err
	}
	if env.Sequence > 0 {
		if _, err := fmt.Fprintf(t.w, "id: %d\n", env.Sequence); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return t.rc.Flush()
}

// Close ends the stream. The handler goroutine returns shortly after.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// RemoteAddr returns the peer address.
func (t *Transport) RemoteAddr() string { return t.remote }

// finish waits out any in-flight Send and refuses later ones. It must run
// before the handler returns and the response writer becomes invalid.
func (t *Transport) finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}
