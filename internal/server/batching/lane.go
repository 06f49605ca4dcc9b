package batching

import (
	"sync"

	"github.com/agentstation/swarmcast/internal/server/events"
)

// lane is an ordered hand-off between flushing producers and one dispatch
// goroutine. Offers never block.
type lane struct {
	mu    sync.Mutex
	items []events.Batch
	limit int
	wake  chan struct{}
}

func newLane(limit int) *lane {
	return &lane{limit: limit, wake: make(chan struct{}, 1)}
}

// offer appends batches in order. Unless force is set it refuses when the
// lane already holds limit batches.
func (l *lane) offer(batches []events.Batch, force bool) bool {
	l.mu.Lock()
	if !force && len(l.items) >= l.limit {
		l.mu.Unlock()
		return false
	}
	l.items = append(l.items, batches...)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// take removes everything queued on the lane.
func (l *lane) take() []events.Batch {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.items
	l.items = nil
	return items
}

func (l *lane) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
