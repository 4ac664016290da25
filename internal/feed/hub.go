// Package feed fans live push events out to subscribers, one stream per
// simulator. Delivery is in publish order per subscriber; a slow subscriber
// loses oldest events rather than blocking the emitter.
package feed

import (
	"sync"

	md "metering_dashboard"
)

const subscriberBuffer = 64

// Subscription is one subscriber's event stream. Close releases it; the
// channel is closed afterwards.
type Subscription struct {
	C      <-chan md.PushEvent
	cancel func()
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Hub is the in-process pub/sub for push events.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan md.PushEvent
	nextID int
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan md.PushEvent)}
}

// Subscribe registers a stream for one simulator's events.
func (h *Hub) Subscribe(simulatorID string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan md.PushEvent, subscriberBuffer)
	if h.closed {
		close(ch)
		return &Subscription{C: ch, cancel: func() {}}
	}

	id := h.nextID
	h.nextID++
	if h.subs[simulatorID] == nil {
		h.subs[simulatorID] = make(map[int]chan md.PushEvent)
	}
	h.subs[simulatorID][id] = ch

	return &Subscription{
		C: ch,
		cancel: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if chans, ok := h.subs[simulatorID]; ok {
				if c, ok := chans[id]; ok {
					delete(chans, id)
					close(c)
				}
			}
		},
	}
}

// Publish delivers ev to every subscriber of simulatorID without blocking.
// When a subscriber's buffer is full the oldest event is dropped to make room.
func (h *Hub) Publish(simulatorID string, ev md.PushEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs[simulatorID] {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close shuts down the hub and every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, chans := range h.subs {
		for id, ch := range chans {
			delete(chans, id)
			close(ch)
		}
	}
}
