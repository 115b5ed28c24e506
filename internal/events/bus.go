package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// subscriberBuffer is how many events a slow subscriber may lag before
// events are dropped for it.
const subscriberBuffer = 64

// Bus fans events out to subscribers, optionally filtered by run ID.
type Bus struct {
	subscribers map[chan Event]string // channel -> run ID filter
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]string),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a subscriber for runID, or for every run when runID is empty.
func (b *Bus) Subscribe(runID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subscribers[ch] = runID

	b.log.Debug().
		Str("run_id", runID).
		Int("total_subscribers", len(b.subscribers)).
		Msg("New subscriber added")
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Publish delivers event to every matching subscriber without blocking.
// Subscribers whose buffer is full miss the event.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, runID := range b.subscribers {
		if runID != "" && runID != event.RunID {
			continue
		}
		select {
		case ch <- event:
		default:
			b.log.Warn().
				Str("run_id", event.RunID).
				Str("event_type", string(event.Type)).
				Msg("Subscriber channel full, event dropped")
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
