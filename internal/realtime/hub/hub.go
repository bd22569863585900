// Package hub is an in-process realtime transport.
package hub

import (
	"context"
	"sync"

	"community-portal/internal/realtime"
)

// Hub fans published events out to the subscribers of a resource key.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]realtime.Handler
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{subs: make(map[string]map[int]realtime.Handler)}
}

type channel struct {
	hub  *Hub
	key  string
	id   int
	once sync.Once
}

func (c *channel) Close() error {
	c.once.Do(func() {
		c.hub.mu.Lock()
		defer c.hub.mu.Unlock()
		delete(c.hub.subs[c.key], c.id)
		if len(c.hub.subs[c.key]) == 0 {
			delete(c.hub.subs, c.key)
		}
	})
	return nil
}

// Subscribe registers h for resourceKey.
func (h *Hub) Subscribe(ctx context.Context, resourceKey string, handler realtime.Handler) (realtime.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	if h.subs[resourceKey] == nil {
		h.subs[resourceKey] = make(map[int]realtime.Handler)
	}
	h.subs[resourceKey][h.nextID] = handler
	return &channel{hub: h, key: resourceKey, id: h.nextID}, nil
}

// Publish delivers ev synchronously to every subscriber of its key.
func (h *Hub) Publish(ev realtime.Event) {
	h.mu.RLock()
	handlers := make([]realtime.Handler, 0, len(h.subs[ev.ResourceKey]))
	for _, fn := range h.subs[ev.ResourceKey] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Subscribers counts the live subscriptions for resourceKey.
func (h *Hub) Subscribers(resourceKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[resourceKey])
}
