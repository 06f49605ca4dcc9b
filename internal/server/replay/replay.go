// Package replay keeps a bounded per-topic window of recent events for
// reconnect catch-up and fallback polling. Windows live in a TTL cache and
// expire when a topic has been quiet for the configured idle period.
package replay

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentstation/swarmcast/internal/server/cache"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/pkg/constants"
)

// Page is the answer to a catch-up query.
type Page struct {
	Topic  string         `json:"topic"`
	Events []events.Event `json:"events"`
	// Latest is the newest retained sequence for the topic.
	Latest uint64 `json:"latest"`
	// Oldest is the oldest retained sequence, zero when nothing is retained.
	Oldest uint64 `json:"oldest"`
	// Gap is set when events after since were already discarded.
	Gap bool `json:"gap"`
	// More is set when the limit cut the page short.
	More bool `json:"more"`
}

// Log stores per-topic rings.
type Log struct {
	retention int
	rings     *cache.Cache[*ring]
	expired   atomic.Uint64
}

// New creates a log keeping up to retention events per topic for ttl after
// the last append.
func New(retention int, ttl time.Duration) *Log {
	if retention <= 0 {
		retention = constants.DefaultReplayRetention
	}
	if ttl <= 0 {
		ttl = constants.DefaultMaxIdleDisconnected
	}
	l := &Log{
		retention: retention,
		rings:     cache.New[*ring](ttl, ttl/2),
	}
	l.rings.OnEvicted(func(string, *ring) { l.expired.Add(1) })
	return l
}

// Append records a batch. Batches for one topic must arrive in sequence order.
func (l *Log) Append(b events.Batch) {
	if b.Len() == 0 {
		return
	}
	r, ok := l.rings.Get(b.Topic)
	if !ok {
		r, _ = l.rings.Add(b.Topic, newRing(l.retention))
	}
	r.append(b.Events)
	l.rings.Touch(b.Topic)
}

// Since returns up to limit events of topic with a sequence above since.
func (l *Log) Since(topic string, since uint64, limit int) Page {
	if limit <= 0 {
		limit = constants.DefaultPollLimit
	}
	limit = min(limit, constants.MaxPollLimit)

	page := Page{Topic: topic, Events: []events.Event{}}
	r, ok := l.rings.Get(topic)
	if !ok {
		return page
	}
	return r.since(page, since, limit)
}

// Latest returns the newest retained sequence for topic.
func (l *Log) Latest(topic string) uint64 {
	r, ok := l.rings.Get(topic)
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

// Topics returns the topics with a retained window.
func (l *Log) Topics() []string {
	return l.rings.Keys()
}

// Stats reports retained windows.
type Stats struct {
	Topics    int    `json:"topics"`
	Retention int    `json:"retention"`
	Expired   uint64 `json:"expired"`
}

// Stats returns a snapshot of the log size. Expired counts windows dropped
// after their topic went quiet.
func (l *Log) Stats() Stats {
	return Stats{
		Topics:    len(l.rings.Keys()),
		Retention: l.retention,
		Expired:   l.expired.Load(),
	}
}

// ring is a fixed-capacity circular buffer of events in sequence order.
type ring struct {
	mu     sync.Mutex
	buf    []events.Event
	start  int
	n      int
	latest uint64
}

func newRing(size int) *ring {
	return &ring{buf: make([]events.Event, size)}
}

func (r *ring) append(evs []events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range evs {
		if e.Sequence <= r.latest {
			continue
		}
		r.latest = e.Sequence
		if r.n < len(r.buf) {
			r.buf[(r.start+r.n)%len(r.buf)] = e
			r.n++
			continue
		}
		r.buf[r.start] = e
		r.start = (r.start + 1) % len(r.buf)
	}
}

func (r *ring) at(i int) events.Event {
	return r.buf[(r.start+i)%len(r.buf)]
}

func (r *ring) since(page Page, since uint64, limit int) Page {
	r.mu.Lock()
	defer r.mu.Unlock()

	page.Latest = r.latest
	if r.n == 0 {
		return page
	}
	oldest := r.at(0).Sequence
	page.Oldest = oldest
	page.Gap = since+1 < oldest

	// Sequences in the ring are ascending, so binary search the first one above since.
	lo, hi := 0, r.n
	for lo < hi {
		mid := (lo + hi) / 2
		if r.at(mid).Sequence <= since {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	end := min(r.n, lo+limit)
	page.More = end < r.n
	for i := lo; i < end; i++ {
		page.Events = append(page.Events, r.at(i))
	}
	return page
}
