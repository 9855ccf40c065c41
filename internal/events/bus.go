package events

import (
	"sync"

	"github.com/steveyegge/vos/internal/metrics"
)

// Notifier is the publishing side of the bus. Components that only emit
// events depend on this rather than on *Bus.
type Notifier interface {
	Publish(event *Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Publish implements Notifier.
func (NopNotifier) Publish(*Event) {}

// Subscription is a registered listener. Events arrive on C until
// Unsubscribe is called, which closes C.
type Subscription struct {
	C     <-chan *Event
	ch    chan *Event
	types map[EventType]bool
}

func (s *Subscription) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// Bus fans events out to subscribers. Publish never blocks: events are
// dropped for subscribers whose buffer is full.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	bufferSize  int
}

// NewBus creates an event bus whose subscriptions buffer bufferSize events.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a listener for the given types (all types when none are given).
// The caller must call Unsubscribe when done.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	ch := make(chan *Event, b.bufferSize)
	sub := &Subscription{C: ch, ch: ch}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call twice.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub.ch)
}

// Publish sends an event to all interested subscribers.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Drop event for slow consumer
			metrics.RecordEventDropped(string(event.Type))
		}
	}
	metrics.RecordEventPublished(string(event.Type))
}

// Count returns the current number of subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
