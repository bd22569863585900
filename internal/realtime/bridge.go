// Package realtime manages push subscriptions to the remote service on
// behalf of one view controller.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSubscription is matched by every SubscriptionError.
var ErrSubscription = errors.New("realtime subscription failed")

// SubscriptionError reports that a live channel could not be opened.
type SubscriptionError struct {
	ResourceKey string
	Err         error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe to %q: %v", e.ResourceKey, e.Err)
}

func (e *SubscriptionError) Is(target error) bool { return target == ErrSubscription }

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Event is an inbound change notification for a resource.
type Event struct {
	ResourceKey string          `json:"resource_key"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	At          time.Time       `json:"at"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent builds an event with a JSON payload.
func NewEvent(key, typ string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", typ, err)
	}
	return Event{ResourceKey: key, Type: typ, Payload: raw, At: time.Now().UTC()}, nil
}

// Handler receives inbound events.
type Handler func(Event)

// Channel is an open transport subscription.
type Channel interface {
	Close() error
}

// Transport opens subscriptions keyed by resource. Subscribe returns once
// the subscription is live.
type Transport interface {
	Subscribe(ctx context.Context, resourceKey string, h Handler) (Channel, error)
}

// Handle is one live subscription owned by a Bridge.
type Handle struct {
	id          string
	resourceKey string
	ch          Channel

	mu     sync.RWMutex
	closed bool
}

// ResourceKey returns the subscribed resource.
func (h *Handle) ResourceKey() string { return h.resourceKey }

// ID returns the handle's unique id.
func (h *Handle) ID() string { return h.id }

// Live reports whether the handle is still open.
func (h *Handle) Live() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

func (h *Handle) close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.ch.Close()
}

// Bridge keeps at most one live subscription. Open, Swap and Close are
// serialized, and the previous handle is always closed before a new one
// is opened.
type Bridge struct {
	transport Transport
	handler   Handler
	log       *log.Logger

	mu       sync.Mutex
	live     *Handle
	degraded error
}

// NewBridge creates a bridge forwarding inbound events to handler.
func NewBridge(t Transport, handler Handler, logger *log.Logger) *Bridge {
	return &Bridge{transport: t, handler: handler, log: logger}
}

// Open subscribes to resourceKey. If another resource is live it is closed
// first; if resourceKey is already live its handle is returned.
func (b *Bridge) Open(ctx context.Context, resourceKey string) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.swapLocked(ctx, b.live, resourceKey)
}

// Swap closes old, if any, and opens resourceKey.
func (b *Bridge) Swap(ctx context.Context, old *Handle, resourceKey string) (*Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old != nil && old != b.live {
		b.closeHandle(old)
	}
	return b.swapLocked(ctx, b.live, resourceKey)
}

// Close releases h. Closing nil or an already closed handle is a no-op.
func (b *Bridge) Close(h *Handle) error {
	if h == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err := h.close()
	if b.live == h {
		b.live = nil
	}
	return err
}

// CloseAll releases the live handle, if any.
func (b *Bridge) CloseAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live == nil {
		return nil
	}
	err := b.live.close()
	b.live = nil
	return err
}

// Live returns the live handle or nil.
func (b *Bridge) Live() *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// Degraded returns the last open failure while no handle is live.
// A degraded controller relies on manual refresh.
func (b *Bridge) Degraded() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.live != nil {
		return nil
	}
	return b.degraded
}

func (b *Bridge) swapLocked(ctx context.Context, current *Handle, resourceKey string) (*Handle, error) {
	if current != nil && current.Live() && current.resourceKey == resourceKey {
		return current, nil
	}
	if current != nil {
		b.closeHandle(current)
		b.live = nil
	}

	h := &Handle{id: uuid.NewString(), resourceKey: resourceKey}
	ch, err := b.transport.Subscribe(ctx, resourceKey, func(ev Event) {
		h.mu.RLock()
		closed := h.closed
		h.mu.RUnlock()
		if closed {
			return
		}
		b.handler(ev)
	})
	if err != nil {
		serr := &SubscriptionError{ResourceKey: resourceKey, Err: err}
		b.degraded = serr
		b.log.Printf("[WARN] No live updates for %s: %v", resourceKey, err)
		return nil, serr
	}

	h.ch = ch
	b.live = h
	b.degraded = nil
	b.log.Printf("[DEBUG] Subscribed to %s (handle %s)", resourceKey, h.id)
	return h, nil
}

func (b *Bridge) closeHandle(h *Handle) {
	if err := h.close(); err != nil {
		b.log.Printf("[WARN] Closing subscription %s: %v", h.resourceKey, err)
	}
}
