// Package store provides the ordered in-memory collection that backs every
// clinic repository. A Store notifies its subscribers after each mutation so
// that dependent views (selection lists, the report engine, the websocket
// feed) can recompute from scratch.
package store

import (
	"sync"
)

// EventKind identifies the mutation that triggered a notification.
type EventKind string

const (
	Created EventKind = "created"
	Updated EventKind = "updated"
	Deleted EventKind = "deleted"
)

// Event is delivered to subscribers after a mutation completes. It carries
// no diff; subscribers re-read the collection if they need its contents.
type Event struct {
	Kind       EventKind `json:"kind"`
	Collection string    `json:"collection"`
}

// Listener receives store events.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// Store is an ordered collection of values of one record type. Values are
// copied in and out, so callers never share memory with the store.
type Store[T any] struct {
	name  string
	mu    sync.RWMutex
	items []T

	lmu       sync.Mutex
	listeners []subscription
	nextID    int
}

// New creates an empty store. name is reported as Event.Collection.
func New[T any](name string) *Store[T] {
	return &Store[T]{name: name}
}

// Name returns the collection name.
func (s *Store[T]) Name() string { return s.name }

// Add appends item. The store performs no validation.
func (s *Store[T]) Add(item T) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
	s.notify(Created)
}

// Remove deletes the first item matching match and returns it.
func (s *Store[T]) Remove(match func(T) bool) (T, bool) {
	var zero T
	s.mu.Lock()
	idx := s.indexLocked(match)
	if idx < 0 {
		s.mu.Unlock()
		return zero, false
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.mu.Unlock()
	s.notify(Deleted)
	return removed, true
}

// Update applies mutate in place to the first item matching match and
// returns the updated copy.
func (s *Store[T]) Update(match func(T) bool, mutate func(*T)) (T, bool) {
	var zero T
	s.mu.Lock()
	idx := s.indexLocked(match)
	if idx < 0 {
		s.mu.Unlock()
		return zero, false
	}
	mutate(&s.items[idx])
	updated := s.items[idx]
	s.mu.Unlock()
	s.notify(Updated)
	return updated, true
}

// Find returns the first item matching match.
func (s *Store[T]) Find(match func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var zero T
	if idx := s.indexLocked(match); idx >= 0 {
		return s.items[idx], true
	}
	return zero, false
}

// All returns a copy of the collection in insertion order.
func (s *Store[T]) All() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Subscribe registers fn and returns a function that removes it again.
// Listeners run synchronously, in subscription order, after the mutation
// has been applied and the store lock released.
func (s *Store[T]) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store[T]) indexLocked(match func(T) bool) int {
	for i, it := range s.items {
		if match(it) {
			return i
		}
	}
	return -1
}

func (s *Store[T]) notify(kind EventKind) {
	s.lmu.Lock()
	listeners := make([]subscription, len(s.listeners))
	copy(listeners, s.listeners)
	s.lmu.Unlock()

	evt := Event{Kind: kind, Collection: s.name}
	for _, l := range listeners {
		l.fn(evt)
	}
}
