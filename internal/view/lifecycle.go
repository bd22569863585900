// Package view holds what every feature controller shares: the ordered
// initialization lifecycle, status reporting, change notification and
// user-visible toasts.
package view

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"community-portal/internal/ready"
	"community-portal/internal/session"
)

// ErrNotWired is returned by mutations attempted before initialization
// finished.
var ErrNotWired = errors.New("view is not ready for input")

// Phase is where a controller is in its lifecycle.
type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	// PhaseUnavailable is terminal: the service never became ready.
	PhaseUnavailable Phase = "unavailable"
)

// Status is the controller state shown next to its content.
type Status struct {
	Phase Phase `json:"phase"`
	// Error describes the last failed load, if any.
	Error string      `json:"error,omitempty"`
	Gate  ready.State `json:"gate"`
}

// Steps are the controller specific parts of initialization.
type Steps interface {
	// Fetch loads the initial collection. It must not mutate remote state.
	Fetch(ctx context.Context, h *session.Handle) error
	// Render rebuilds the view model from the current collection.
	Render()
	// Subscribe opens live updates. Failure leaves the view usable.
	Subscribe(ctx context.Context, h *session.Handle) error
}

// Lifecycle runs gate, fetch, render, wire and subscribe strictly in that
// order for one controller instance.
type Lifecycle struct {
	name string
	gate *ready.Gate[*session.Handle]
	feed *Feed
	log  *log.Logger

	mu     sync.RWMutex
	phase  Phase
	err    error
	handle *session.Handle
}

// NewLifecycle creates a lifecycle whose gate polls probe.
func NewLifecycle(name string, probe ready.Probe[*session.Handle], interval time.Duration, maxAttempts int, feed *Feed, logger *log.Logger) *Lifecycle {
	return &Lifecycle{
		name:  name,
		gate:  ready.NewGate(probe, interval, maxAttempts),
		feed:  feed,
		log:   logger,
		phase: PhaseWaiting,
	}
}

// Name returns the controller name.
func (l *Lifecycle) Name() string { return l.name }

// Run initializes the controller. A gate failure renders the unavailable
// state and stops. A fetch failure renders the error state but input is
// still wired so the member can refresh.
func (l *Lifecycle) Run(ctx context.Context, steps Steps) error {
	h, err := l.gate.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		l.set(PhaseUnavailable, err)
		steps.Render()
		l.Changed()
		return fmt.Errorf("%s: %w", l.name, err)
	}

	l.set(PhaseLoading, nil)
	l.Changed()

	ferr := steps.Fetch(ctx, h)
	if ferr != nil {
		l.log.Printf("[WARN] %s: initial load failed: %v", l.name, ferr)
	}
	steps.Render()

	l.mu.Lock()
	l.handle = h
	l.phase = PhaseReady
	l.err = ferr
	l.mu.Unlock()
	l.Changed()

	if serr := steps.Subscribe(ctx, h); serr != nil {
		l.log.Printf("[WARN] %s: live updates unavailable, falling back to refresh: %v", l.name, serr)
	}
	l.Changed()

	if ferr != nil {
		return fmt.Errorf("%s: %w", l.name, ferr)
	}
	return nil
}

// Handle returns the session handle once input is wired.
func (l *Lifecycle) Handle() (*session.Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.handle == nil {
		return nil, ErrNotWired
	}
	return l.handle, nil
}

// SetError records the outcome of a reload. nil clears the error.
func (l *Lifecycle) SetError(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

// Status reports the current state.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Status{Phase: l.phase, Gate: l.gate.State()}
	if l.err != nil {
		s.Error = l.err.Error()
	}
	return s
}

// Changed announces that the controller's view model changed.
func (l *Lifecycle) Changed() {
	if l.feed != nil {
		l.feed.Publish(l.name)
	}
}

func (l *Lifecycle) set(p Phase, err error) {
	l.mu.Lock()
	l.phase = p
	l.err = err
	l.mu.Unlock()
}
