// Package ids generates patient identifiers. Generated identifiers never
// depend on the wall clock, so two additions in quick succession cannot
// collide.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	SchemeSequence = "sequence"
	SchemeUUID     = "uuid"
)

// Generator produces identifiers. taken reports whether a candidate is
// already in use; generators skip such candidates.
type Generator interface {
	Next(taken func(id string) bool) string
}

// SequenceGenerator yields PREFIX0001, PREFIX0002, ... from a monotonic
// counter.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

func (g *SequenceGenerator) Next(taken func(string) bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		g.n++
		id := fmt.Sprintf("%s%04d", g.prefix, g.n)
		if taken == nil || !taken(id) {
			return id
		}
	}
}

// UUIDGenerator yields random version 4 UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Next(taken func(string) bool) string {
	for {
		id := uuid.NewString()
		if taken == nil || !taken(id) {
			return id
		}
	}
}

// New returns the generator for scheme.
func New(scheme, prefix string) (Generator, error) {
	switch scheme {
	case "", SchemeSequence:
		return NewSequenceGenerator(prefix), nil
	case SchemeUUID:
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id scheme %q", scheme)
	}
}
