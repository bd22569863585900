// Package ready waits for an asynchronous dependency to become available.
//
// Await polls a probe on a fixed interval with a bounded number of attempts.
// Gate wraps one such wait so that it resolves exactly once.
package ready

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotReady is matched by every NotReadyError.
var ErrNotReady = errors.New("service not ready")

// NotReadyError reports that the dependency never became available within
// the polling budget.
type NotReadyError struct {
	Attempts int
	Last     error
}

func (e *NotReadyError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("service not ready after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("service not ready after %d attempts", e.Attempts)
}

// Is reports whether target is ErrNotReady.
func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

func (e *NotReadyError) Unwrap() error {
	return e.Last
}

// Probe returns the dependency, or an error while it is not available yet.
type Probe[T any] func(ctx context.Context) (T, error)

// Await invokes probe until it succeeds or maxAttempts probes have failed.
// The first probe runs immediately; later ones run interval apart. A probe
// that returns an error or panics counts as "not ready yet".
func Await[T any](ctx context.Context, probe Probe[T], interval time.Duration, maxAttempts int) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := safeProbe(ctx, probe)
		if err == nil {
			return v, nil
		}
		last = err

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("readiness wait cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}

	return zero, &NotReadyError{Attempts: maxAttempts, Last: last}
}

func safeProbe[T any](ctx context.Context, probe Probe[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return probe(ctx)
}

// AwaitSignal waits for clients that expose an initialization signal
// instead of polling them. It fails with a NotReadyError once timeout
// elapses without ready being closed.
func AwaitSignal[T any](ctx context.Context, ready <-chan struct{}, get func() (T, error), timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return get()
	case <-timer.C:
		return zero, &NotReadyError{Attempts: 1, Last: fmt.Errorf("no ready signal within %s", timeout)}
	case <-ctx.Done():
		return zero, fmt.Errorf("readiness wait cancelled: %w", ctx.Err())
	}
}

// SignalProbe adapts a ready channel to a Probe for use with a Gate. Each
// probe call waits at most one interval for the signal.
func SignalProbe[T any](ready <-chan struct{}, get func() (T, error), interval time.Duration) Probe[T] {
	return func(ctx context.Context) (T, error) {
		return AwaitSignal(ctx, ready, get, interval)
	}
}

// State is a snapshot of a Gate.
type State struct {
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Interval    time.Duration `json:"interval"`
	Resolved    bool          `json:"resolved"`
	Err         string        `json:"error,omitempty"`
}

// Gate resolves a dependency once per owner. After the first Wait finishes,
// later calls return the same outcome without polling again.
type Gate[T any] struct {
	probe       Probe[T]
	interval    time.Duration
	maxAttempts int

	poll sync.Mutex // serializes Wait

	mu       sync.Mutex
	attempts int
	resolved bool
	value    T
	err      error
}

// NewGate creates a gate around probe.
func NewGate[T any](probe Probe[T], interval time.Duration, maxAttempts int) *Gate[T] {
	return &Gate[T]{probe: probe, interval: interval, maxAttempts: maxAttempts}
}

// Wait polls until the gate resolves. Concurrent callers share one poll.
func (g *Gate[T]) Wait(ctx context.Context) (T, error) {
	g.poll.Lock()
	defer g.poll.Unlock()

	g.mu.Lock()
	if g.resolved {
		defer g.mu.Unlock()
		return g.value, g.err
	}
	g.mu.Unlock()

	counted := func(ctx context.Context) (T, error) {
		g.mu.Lock()
		g.attempts++
		g.mu.Unlock()
		return g.probe(ctx)
	}
	v, err := Await(ctx, counted, g.interval, g.maxAttempts)
	if err != nil && !errors.Is(err, ErrNotReady) {
		// Cancelled: the owner is going away, leave the gate unresolved.
		return v, err
	}

	g.mu.Lock()
	g.resolved = true
	g.value, g.err = v, err
	g.mu.Unlock()
	return v, err
}

// State returns the gate's current polling state.
func (g *Gate[T]) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := State{
		Attempts:    g.attempts,
		MaxAttempts: g.maxAttempts,
		Interval:    g.interval,
		Resolved:    g.resolved,
	}
	if g.err != nil {
		s.Err = g.err.Error()
	}
	return s
}
