package ledger

import (
	"sync"

	"github.com/google/uuid"
)

// EventFilter selects event types a subscriber wants. An empty Types slice
// matches every event.
type EventFilter struct {
	Types []string
}

func (f EventFilter) matches(e Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// Subscription delivers matching events on C until Close is called.
// Slow consumers drop events rather than block state transitions.
type Subscription struct {
	ID string
	C  <-chan Event

	filter EventFilter
	ch     chan Event
	once   sync.Once
	bus    *eventBus
}

// Close cancels the subscription and releases its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.ID)
		close(s.ch)
	})
}

const subscriptionBuffer = 256

type eventBus struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[string]*Subscription)}
}

func (b *eventBus) subscribe(filter EventFilter) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		C:      ch,
		filter: filter,
		ch:     ch,
		bus:    b,
	}

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

func (b *eventBus) unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *eventBus) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !sub.filter.matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Buffer full: drop instead of blocking the emitter.
		}
	}
}
