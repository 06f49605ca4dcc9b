// Package rooms maps subscription patterns to the connections interested in
// them.
//
// The registry publishes an immutable snapshot through an atomic pointer, so
// Route never takes a lock and never waits on Subscribe or Unsubscribe.
// Writers serialize on a mutex and swap in a new snapshot. Rooms hold
// connection IDs only; a connection's lifetime is owned elsewhere.
package rooms

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/agentstation/swarmcast/internal/server/events"
)

// ConnID identifies a connection.
type ConnID = string

type room map[ConnID]struct{}

type snapshot struct {
	rooms map[string]room     // pattern -> members
	conns map[ConnID][]string // conn -> sorted patterns
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	snap     atomic.Pointer[snapshot]
	onChange func(rooms int)
}

// Option configures a Registry.
type Option func(*Registry)

// WithRoomCountHook is called with the room count after every change.
func WithRoomCountHook(fn func(rooms int)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{rooms: map[string]room{}, conns: map[ConnID][]string{}})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe adds conn to the room for pattern, creating the room if needed.
func (r *Registry) Subscribe(conn ConnID, pattern string) error {
	if err := events.ValidatePattern(pattern); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.rooms[pattern][conn]; ok {
		return nil
	}

	next := cur.clone()
	members := maps.Clone(next.rooms[pattern])
	if members == nil {
		members = room{}
	}
	members[conn] = struct{}{}
	next.rooms[pattern] = members

	topics := slices.Clone(next.conns[conn])
	i, _ := slices.BinarySearch(topics, pattern)
	next.conns[conn] = slices.Insert(topics, i, pattern)

	r.publish(next)
	return nil
}

// Unsubscribe removes conn from the room for pattern. The room is deleted when
// it becomes empty. Unsubscribing from a pattern the connection never joined
// is not an error.
func (r *Registry) Unsubscribe(conn ConnID, pattern string) error {
	if err := events.ValidatePattern(pattern); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.rooms[pattern][conn]; !ok {
		return nil
	}

	next := cur.clone()
	next.leave(conn, pattern)
	r.publish(next)
	return nil
}

// RemoveConnection prunes conn from every room before returning.
func (r *Registry) RemoveConnection(conn ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	patterns, ok := cur.conns[conn]
	if !ok {
		return
	}

	next := cur.clone()
	for _, p := range patterns {
		next.leave(conn, p)
	}
	r.publish(next)
}

// Route returns the connections subscribed to topic through its exact room,
// the global room or any matching prefix wildcard room. Each connection
// appears once.
func (r *Registry) Route(topic string) []ConnID {
	snap := r.snap.Load()

	var out []ConnID
	var seen map[ConnID]struct{}
	add := func(members room) {
		for id := range members {
			if seen == nil {
				seen = make(map[ConnID]struct{}, len(members))
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	add(snap.rooms[topic])
	for _, p := range events.WildcardsFor(topic) {
		add(snap.rooms[p])
	}
	return out
}

// Topics returns the patterns conn is subscribed to, sorted.
func (r *Registry) Topics(conn ConnID) []string {
	return slices.Clone(r.snap.Load().conns[conn])
}

// Rooms returns the number of non-empty rooms.
func (r *Registry) Rooms() int {
	return len(r.snap.Load().rooms)
}

// Members returns the size of the room for pattern.
func (r *Registry) Members(pattern string) int {
	return len(r.snap.Load().rooms[pattern])
}

// Patterns returns every room pattern, sorted.
func (r *Registry) Patterns() []string {
	return slices.Sorted(maps.Keys(r.snap.Load().rooms))
}

func (r *Registry) publish(next *snapshot) {
	r.snap.Store(next)
	if r.onChange != nil {
		r.onChange(len(next.rooms))
	}
}

// clone copies the top-level maps. Room member sets and topic slices are
// shared and must be copied before modification.
func (s *snapshot) clone() *snapshot {
	return &snapshot{
		rooms: maps.Clone(s.rooms),
		conns: maps.Clone(s.conns),
	}
}

// leave removes conn from pattern on a cloned snapshot.
func (s *snapshot) leave(conn ConnID, pattern string) {
	if members, ok := s.rooms[pattern]; ok {
		if len(members) <= 1 {
			delete(s.rooms, pattern)
		} else {
			members = maps.Clone(members)
			delete(members, conn)
			s.rooms[pattern] = members
		}
	}

	topics := s.conns[conn]
	if i, found := slices.BinarySearch(topics, pattern); found {
		topics = slices.Delete(slices.Clone(topics), i, i+1)
	}
	if len(topics) == 0 {
		delete(s.conns, conn)
	} else {
		s.conns[conn] = topics
	}
}
