// Package broadcast provides an in-process, per-topic fanout bus. The client
// session manager uses it to propagate auth state changes (login, logout,
// expiry) between views sharing one process, the way browser tabs share a
// broadcast channel.
package broadcast

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Event is a message published on a topic.
type Event struct {
	Topic   string
	Kind    string
	Payload map[string]string
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Bus fans events out to every subscriber of a topic. Publish never blocks:
// a subscriber that cannot keep up has the event dropped rather than stalling
// the publisher.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		topics: make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener on topic. The returned cancel function
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		delete(b.topics[topic], sub)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Publish delivers ev to every current subscriber of ev.Topic.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[ev.Topic] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"topic", ev.Topic, "kind", ev.Kind)
		}
	}
}

// SubscriberCount reports the number of listeners on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
