// Package events carries local change notifications between the stores and
// their observers, and records them in the event log.
package events

import (
	"sync"

	"github.com/lherron/cartsync/internal/domain"
)

// Change describes the state of one collection after a mutation. Origin is
// empty for user mutations; components writing on their own behalf set it
// so they can recognize their changes.
type Change struct {
	Resource domain.ResourceKind
	Op       string
	Origin   string
	Cart     []domain.CartItem
	Wishlist []domain.Product
}

// Handler receives changes.
type Handler func(Change)

// Bus is an observer list. Handlers run synchronously on the publishing
// goroutine, in subscription order.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	order    []int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a func that removes it. The returned
// func is safe to call more than once.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers c to every current subscriber.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(c)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
