package events

import (
	"sync"

	"satukanvas/pkg/logger"
)

type Handler func(Event)

// Bus fans events out to subscribers synchronously, in subscription order.
// Publishers must not hold their own locks while publishing.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a func that removes it. Calling the
// returned func more than once is harmless.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
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
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers e to every current subscriber. A panicking handler is
// logged and does not stop delivery to the rest.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(h, e)
	}
}

func deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Sugar.Errorf("event handler panicked on %T: %v", e, r)
		}
	}()
	h(e)
}

// Channel subscribes a buffered channel. When the buffer is full the event
// is dropped with a warning rather than blocking the publisher.
func (b *Bus) Channel(size int) (<-chan Event, func()) {
	ch := make(chan Event, size)
	var mu sync.Mutex
	closed := false
	unsubscribe := b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
			logger.Sugar.Warnf("event channel full, dropping %T", e)
		}
	})
	return ch, func() {
		unsubscribe()
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
}
