package events

import "sync"

// Handler receives events delivered by a Bus.
type Handler func(Event)

// Bus delivers events synchronously, in subscription order, on the
// publisher's goroutine. A handler may publish further events; they are
// delivered before Publish returns.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
}

type subscription struct {
	id int
	h  Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers h for topic. Call the returned function to
// unsubscribe.
func (b *Bus) Subscribe(topic string, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[topic]
			for i, s := range list {
				if s.id == id {
					b.subs[topic] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every handler subscribed to its topic.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	list := b.subs[ev.Topic()]
	b.mu.RUnlock()

	for _, s := range list {
		s.h(ev)
	}
}
