package sse

import (
	"sync"
)

// Event represents an SSE event to be sent to subscribers
type Event struct {
	Channel string
	Event   string
	Data    interface{}
}

// Hub manages SSE subscribers and event broadcasting
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	bufferSize  int
}

// NewHub creates a new SSE Hub instance
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		bufferSize:  32,
	}
}

// Subscribe registers a new subscriber on a channel and returns the event channel and cleanup function
func (h *Hub) Subscribe(channel string) (chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.bufferSize)

	if h.subscribers[channel] == nil {
		h.subscribers[channel] = make(map[chan Event]struct{})
	}
	h.subscribers[channel][ch] = struct{}{}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[channel], ch)
			close(ch)
			if len(h.subscribers[channel]) == 0 {
				delete(h.subscribers, channel)
			}
		})
	}

	return ch, cleanup
}

// Publish sends an event to all subscribers of a channel. It returns the
// number of subscribers that received it.
func (h *Hub) Publish(channel string, event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	if subs, ok := h.subscribers[channel]; ok {
		for ch := range subs {
			select {
			case ch <- event:
				delivered++
			default:
				// Skip if channel is full (non-blocking to prevent deadlock)
			}
		}
	}
	return delivered
}

// PublishToMany sends an event to several channels
func (h *Hub) PublishToMany(channels []string, event Event) int {
	delivered := 0
	for _, channel := range channels {
		eventCopy := event
		eventCopy.Channel = channel
		delivered += h.Publish(channel, eventCopy)
	}
	return delivered
}

// SubscriberCount returns the number of active subscribers on a channel
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if subs, ok := h.subscribers[channel]; ok {
		return len(subs)
	}
	return 0
}

// TotalSubscribers returns the total number of active subscribers across all channels
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}
