// Package queue implements the per-connection outbound queue.
//
// The queue has two tiers. Protected items (alerts, lifecycle and task events,
// control frames) are never evicted. Evictable items (metric samples and
// status changes) are trimmed oldest-first when the queue exceeds its
// capacity. Capacity counts events, not items. Every item carries a global
// enqueue number and Peek always returns the lowest one, so items leave in
// the order they arrived apart from evictions.
package queue

import (
	"sync"

	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/server/protocol"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Item is one queued frame: either a batch of events or a control envelope.
type Item struct {
	ID      uint64
	Batch   events.Batch
	Control *protocol.Envelope
}

// Len returns the number of events the item counts against capacity.
func (i Item) Len() int {
	if i.Control != nil {
		return 1
	}
	return i.Batch.Len()
}

// Evictable reports whether the item may be evicted on overflow.
func (i Item) Evictable() bool {
	return i.Control == nil && i.Batch.Kind.Evictable()
}

// Envelope converts the item to its wire frame.
func (i Item) Envelope() protocol.Envelope {
	if i.Control != nil {
		return *i.Control
	}
	return protocol.FromBatch(i.Batch)
}

// Stats reports queue counters.
type Stats struct {
	Len      int    `json:"len"`
	Items    int    `json:"items"`
	Capacity int    `json:"capacity"`
	Enqueued uint64 `json:"enqueued"`
	Evicted  uint64 `json:"evicted"`
	Dropped  uint64 `json:"dropped"`
}

// OverflowHandler observes evictions and drops. It is called outside the
// queue lock.
type OverflowHandler func(*errors.QueueOverflowError)

// Option configures a Queue.
type Option func(*Queue)

// WithOverflowHandler registers a callback for overflow occurrences.
func WithOverflowHandler(h OverflowHandler) Option {
	return func(q *Queue) { q.onOverflow = h }
}

// Queue is a bounded two-tier FIFO. It is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	capacity  int
	protected fifo
	evictable fifo
	size      int
	nextID    uint64

	enqueued uint64
	evicted  uint64
	dropped  uint64

	notify     chan struct{}
	onOverflow OverflowHandler
}

// New creates a queue holding up to capacity events.
func New(capacity int, opts ...Option) *Queue {
	if capacity <= 0 {
		capacity = constants.DefaultQueueCapacity
	}
	q := &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push enqueues a batch. It never blocks. It returns false when the batch was
// dropped entirely.
func (q *Queue) Push(b events.Batch) bool {
	if b.Len() == 0 {
		return true
	}
	return q.push(Item{Batch: b})
}

// PushControl enqueues a protected control frame.
func (q *Queue) PushControl(env protocol.Envelope) {
	q.push(Item{Control: &env})
}

func (q *Queue) push(it Item) bool {
	q.mu.Lock()

	var evicted, dropped int
	admitted := true
	n := it.Len()

	if over := q.size + n - q.capacity; over > 0 {
		evicted = q.evictOldest(over)
		over -= evicted

		if over > 0 && it.Evictable() {
			if over >= n {
				dropped = n
				admitted = false
			} else {
				it.Batch.Events = it.Batch.Events[over:]
				dropped = over
				n -= over
			}
		}
	}

	if admitted {
		q.nextID++
		it.ID = q.nextID
		if it.Evictable() {
			q.evictable.push(it)
		} else {
			q.protected.push(it)
		}
		q.size += n
		q.enqueued++
	}
	q.evicted += uint64(evicted)
	q.dropped += uint64(dropped)
	handler := q.onOverflow
	capacity := q.capacity
	q.mu.Unlock()

	if admitted {
		q.signal()
	}
	if handler != nil && (evicted > 0 || dropped > 0) {
		handler(&errors.QueueOverflowError{
			Kind:     it.kindName(),
			Evicted:  evicted,
			Dropped:  dropped,
			Capacity: capacity,
		})
	}
	return admitted
}

// evictOldest removes up to need events from the head of the evictable tier
// and returns how many were removed. Must hold q.mu.
func (q *Queue) evictOldest(need int) int {
	removed := 0
	for need > 0 && q.evictable.len() > 0 {
		head := q.evictable.front()
		n := head.Batch.Len()
		if n <= need {
			q.evictable.pop()
			removed += n
			need -= n
			continue
		}
		head.Batch.Events = head.Batch.Events[need:]
		removed += need
		need = 0
	}
	q.size -= removed
	return removed
}

// Peek returns the oldest item without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	head := q.head()
	if head == nil {
		return Item{}, false
	}
	return *head, true
}

// Ack removes the head if it is still the item with the given id. Eviction
// may already have removed it, in which case Ack reports false.
func (q *Queue) Ack(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	head := q.head()
	if head == nil || head.ID != id {
		return false
	}
	q.popHead()
	return true
}

// AckThrough removes the events with sequence up to seq from the head batch,
// popping it once nothing is left. It covers a batch written in several
// chunks, so a failed write resumes after the last chunk that went out.
func (q *Queue) AckThrough(id, seq uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	head := q.head()
	if head == nil || head.ID != id || head.Control != nil {
		return false
	}
	n := 0
	for n < len(head.Batch.Events) && head.Batch.Events[n].Sequence <= seq {
		n++
	}
	if n == len(head.Batch.Events) {
		q.popHead()
		return true
	}
	head.Batch.Events = head.Batch.Events[n:]
	q.size -= n
	return true
}

// DiscardControl removes queued control frames of type t and returns how
// many were removed.
func (q *Queue) DiscardControl(t protocol.Type) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := q.protected.filter(func(it *Item) bool {
		return it.Control == nil || it.Control.Type != t
	})
	q.size -= removed
	return removed
}

// Drain removes and returns every queued item in enqueue order.
func (q *Queue) Drain() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, q.protected.len()+q.evictable.len())
	for q.head() != nil {
		out = append(out, q.popHead())
	}
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Items returns the number of queued items.
func (q *Queue) Items() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.protected.len() + q.evictable.len()
}

// Capacity returns the configured capacity in events.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.size,
		Items:    q.protected.len() + q.evictable.len(),
		Capacity: q.capacity,
		Enqueued: q.enqueued,
		Evicted:  q.evicted,
		Dropped:  q.dropped,
	}
}

// Notify returns a channel that receives after pushes. It is buffered by one,
// so a reader that drains until Peek reports empty never misses an item.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// head returns the item with the lowest enqueue number. Must hold q.mu.
func (q *Queue) head() *Item {
	p, e := q.protected.front(), q.evictable.front()
	switch {
	case p == nil:
		return e
	case e == nil:
		return p
	case p.ID < e.ID:
		return p
	default:
		return e
	}
}

// popHead removes the head item. Must hold q.mu.
func (q *Queue) popHead() Item {
	var it Item
	if q.head() == q.protected.front() {
		it = q.protected.pop()
	} else {
		it = q.evictable.pop()
	}
	q.size -= it.Len()
	return it
}

func (i Item) kindName() string {
	if i.Control != nil {
		return string(i.Control.Type)
	}
	return i.Batch.Kind.String()
}
