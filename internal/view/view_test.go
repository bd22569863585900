package view

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-portal/internal/auth"
	"community-portal/internal/ready"
	"community-portal/internal/session"
)

var discard = log.New(io.Discard, "", 0)

// stepRecorder records the order in which lifecycle steps ran.
type stepRecorder struct {
	mu       sync.Mutex
	calls    []string
	fetchErr error
	subErr   error
}

func (s *stepRecorder) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, step)
}

func (s *stepRecorder) Fetch(context.Context, *session.Handle) error {
	s.record("fetch")
	return s.fetchErr
}

func (s *stepRecorder) Render() { s.record("render") }

func (s *stepRecorder) Subscribe(context.Context, *session.Handle) error {
	s.record("subscribe")
	return s.subErr
}

func handleProbe(h *session.Handle) ready.Probe[*session.Handle] {
	return func(context.Context) (*session.Handle, error) { return h, nil }
}

func TestLifecycle_Order(t *testing.T) {
	h := &session.Handle{Identity: auth.Identity{UserID: "u1"}}
	lc := NewLifecycle("panel", handleProbe(h), time.Millisecond, 3, nil, discard)

	_, err := lc.Handle()
	assert.ErrorIs(t, err, ErrNotWired)

	steps := &stepRecorder{}
	require.NoError(t, lc.Run(context.Background(), steps))
	assert.Equal(t, []string{"fetch", "render", "subscribe"}, steps.calls)

	got, err := lc.Handle()
	require.NoError(t, err)
	assert.Same(t, h, got)
	assert.Equal(t, PhaseReady, lc.Status().Phase)
}

func TestLifecycle_GateFailureStops(t *testing.T) {
	probe := func(context.Context) (*session.Handle, error) { return nil, session.ErrNoService }
	lc := NewLifecycle("chat", probe, time.Millisecond, 2, nil, discard)

	steps := &stepRecorder{}
	err := lc.Run(context.Background(), steps)
	assert.ErrorIs(t, err, ready.ErrNotReady)
	assert.Equal(t, []string{"render"}, steps.calls, "only the error state is rendered")

	st := lc.Status()
	assert.Equal(t, PhaseUnavailable, st.Phase)
	assert.NotEmpty(t, st.Error)
	assert.Equal(t, 2, st.Gate.Attempts)

	_, err = lc.Handle()
	assert.ErrorIs(t, err, ErrNotWired)
}

func TestLifecycle_FetchFailureStillWires(t *testing.T) {
	lc := NewLifecycle("events", handleProbe(&session.Handle{}), time.Millisecond, 1, nil, discard)
	steps := &stepRecorder{fetchErr: errors.New("timeout"), subErr: errors.New("no realtime")}

	err := lc.Run(context.Background(), steps)
	assert.Error(t, err)
	assert.Equal(t, []string{"fetch", "render", "subscribe"}, steps.calls)

	_, herr := lc.Handle()
	assert.NoError(t, herr)
	assert.Equal(t, "timeout", lc.Status().Error)

	lc.SetError(nil)
	assert.Empty(t, lc.Status().Error)
}

func TestLifecycle_CancelledWhileWaiting(t *testing.T) {
	probe := func(context.Context) (*session.Handle, error) { return nil, session.ErrNoIdentity }
	lc := NewLifecycle("panel", probe, 50*time.Millisecond, 100, nil, discard)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	steps := &stepRecorder{}
	err := lc.Run(ctx, steps)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, steps.calls)
	assert.Equal(t, PhaseWaiting, lc.Status().Phase)
}

func TestLifecycle_PublishesChanges(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	lc := NewLifecycle("panel", handleProbe(&session.Handle{}), time.Millisecond, 1, feed, discard)
	require.NoError(t, lc.Run(context.Background(), &stepRecorder{}))

	select {
	case name := <-ch:
		assert.Equal(t, "panel", name)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}
}

func TestFeed_UnsubscribeClosesChannel(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	feed.Publish("after close")
}

func TestFeed_SlowSubscriberDoesNotBlock(t *testing.T) {
	feed := NewFeed()
	_, cancel := feed.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			feed.Publish("chat")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
}

func TestToasts(t *testing.T) {
	toasts := NewToasts(50*time.Millisecond, nil)

	first := toasts.Error("Could not mark as read")
	time.Sleep(time.Millisecond)
	toasts.Info("Registered")

	list := toasts.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, LevelError, list[0].Level)

	toasts.Dismiss(first.ID)
	assert.Len(t, toasts.List(), 1)

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, toasts.List())
}
