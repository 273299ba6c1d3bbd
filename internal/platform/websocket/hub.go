// Package websocket pushes record-change notifications to browser clients.
// Clients follow collection topics and receive an event after every
// mutation of that collection, so open lists and charts can refresh.
package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/platform/store"
)

const (
	TopicPatients     = "patients"
	TopicDoctors      = "doctors"
	TopicAppointments = "appointments"
	TopicBilling      = "billing"
)

// outboxSize bounds the events queued for one slow connection.
const outboxSize = 64

// Event is a change notification. It carries no diff; clients refetch the
// collection.
type Event struct {
	Type       string    `json:"type"`
	Topic      string    `json:"topic"`
	Collection string    `json:"collection"`
	Timestamp  time.Time `json:"timestamp"`
}

// Command is an inbound control frame: {"action":"subscribe","topics":[...]}.
type Command struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Publisher is what store bridges depend on.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber is one connection's view of the hub.
type Subscriber struct {
	ID string

	mu      sync.RWMutex
	topics  map[string]struct{}
	outbox  chan Event
	dropped atomic.Int64
}

// Events yields queued events until the subscriber leaves the hub.
func (s *Subscriber) Events() <-chan Event { return s.outbox }

// Dropped counts events lost because the outbox was full.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

func (s *Subscriber) Follow(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		s.topics[t] = struct{}{}
	}
}

func (s *Subscriber) Unfollow(topics ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		delete(s.topics, t)
	}
}

func (s *Subscriber) Follows(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topics[topic]
	return ok
}

// Topics returns the followed topics in no particular order.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Keys(s.topics)
}

// Apply runs a control command. Unknown actions are ignored.
func (s *Subscriber) Apply(cmd Command) {
	switch cmd.Action {
	case "subscribe":
		s.Follow(cmd.Topics...)
	case "unsubscribe":
		s.Unfollow(cmd.Topics...)
	}
}

// Hub fans events out to subscribers. Delivery never blocks the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	logger      zerolog.Logger
	now         func() time.Time
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		logger:      logger.With().Str("component", "websocket").Logger(),
		now:         time.Now,
	}
}

// Join adds a subscriber following topics.
func (h *Hub) Join(topics ...string) *Subscriber {
	s := &Subscriber{
		ID:     uuid.NewString(),
		topics: make(map[string]struct{}),
		outbox: make(chan Event, outboxSize),
	}
	s.Follow(topics...)

	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Leave removes s and closes its event channel. Leaving twice is a no-op.
func (h *Hub) Leave(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; !ok {
		return
	}
	delete(h.subscribers, s)
	close(s.outbox)
}

// Publish queues event for every subscriber following its topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subscribers {
		if !s.Follows(event.Topic) {
			continue
		}
		select {
		case s.outbox <- event:
		default:
			s.dropped.Add(1)
			h.logger.Warn().
				Str("subscriber", s.ID).
				Str("topic", event.Topic).
				Msg("outbox full, event dropped")
		}
	}
	return nil
}

// Forward returns a store listener that publishes each change on topic.
func (h *Hub) Forward(topic string) store.Listener {
	return func(ev store.Event) {
		_ = h.Publish(context.Background(), Event{
			Type:       "record." + string(ev.Kind),
			Topic:      topic,
			Collection: ev.Collection,
			Timestamp:  h.now().UTC(),
		})
	}
}

// Subscribers is the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Followers is the number of subscribers following topic.
func (h *Hub) Followers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.CountBy(lo.Keys(h.subscribers), func(s *Subscriber) bool {
		return s.Follows(topic)
	})
}
