package presence

import (
	"sync"
	"time"
)

// EventType identifies a presence state change.
type EventType string

const (
	EventAvailabilityChanged EventType = "availability_changed"
	EventSessionStarted      EventType = "session_started"
	EventSessionCleared      EventType = "session_cleared"
	EventSessionExpired      EventType = "session_expired"
)

// Event describes one presence change for a user.
type Event struct {
	Type       EventType
	UserID     string
	PlaceID    string
	Ready      *bool
	ReadyUntil *time.Time
	At         time.Time
}

const subscriberBuffer = 16

type subscriber struct {
	userID string
	ch     chan Event
}

// Broker fans presence events out to per-user subscriptions. It is the
// push alternative to polling the HTTP endpoints: a client subscribes to
// the users it cares about (itself, its friends) and receives their state
// changes as they happen.
type Broker struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]subscriber)}
}

// Subscribe returns a channel delivering events about userID and a cancel
// function that closes it. The channel is buffered; a subscriber that
// falls behind loses events rather than stalling publishers, so consumers
// needing a full picture must re-poll after a gap.
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{userID: userID, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub.ch)
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// Publish delivers the event to every subscription for its user.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.userID != evt.UserID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports active subscriptions for a user. Useful for tests.
func (b *Broker) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, sub := range b.subs {
		if sub.userID == userID {
			n++
		}
	}
	return n
}
