package ready

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbsent = errors.New("absent")

func TestAwait_BoundedAttempts(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		var calls int32
		probe := func(ctx context.Context) (string, error) {
			atomic.AddInt32(&calls, 1)
			return "", errAbsent
		}

		_, err := Await(context.Background(), probe, time.Millisecond, n)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotReady)
		assert.ErrorIs(t, err, errAbsent)
		assert.Equal(t, int32(n), atomic.LoadInt32(&calls))

		var nre *NotReadyError
		require.ErrorAs(t, err, &nre)
		assert.Equal(t, n, nre.Attempts)
	}
}

func TestAwait_SucceedsOnThirdProbe(t *testing.T) {
	var calls int
	probe := func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errAbsent
		}
		return "handle", nil
	}

	start := time.Now()
	v, err := Await(context.Background(), probe, 100*time.Millisecond, 5)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "handle", v)
	assert.Equal(t, 3, calls)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 400*time.Millisecond)
}

func TestAwait_PanickingProbeKeepsPolling(t *testing.T) {
	var calls int
	probe := func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			panic("client not constructed")
		}
		return 42, nil
	}

	v, err := Await(context.Background(), probe, time.Millisecond, 3)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestAwait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	probe := func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
		return 0, errAbsent
	}

	_, err := Await(ctx, probe, 10*time.Millisecond, 100)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGate_ResolvesOnce(t *testing.T) {
	var calls int
	probe := func(ctx context.Context) (string, error) {
		calls++
		return "", errAbsent
	}
	g := NewGate[string](probe, time.Millisecond, 2)

	_, err := g.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = g.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	assert.Equal(t, 2, calls)
	st := g.State()
	assert.True(t, st.Resolved)
	assert.Equal(t, 2, st.Attempts)
	assert.NotEmpty(t, st.Err)
}

func TestGate_CachesSuccess(t *testing.T) {
	var calls int
	g := NewGate[int](func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}, time.Millisecond, 3)

	v1, err := g.Wait(context.Background())
	require.NoError(t, err)
	v2, err := g.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 1, v2)
}

func TestAwaitSignal(t *testing.T) {
	ch := make(chan struct{})
	get := func() (string, error) { return "svc", nil }

	_, err := AwaitSignal(context.Background(), ch, get, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotReady)

	close(ch)
	v, err := AwaitSignal(context.Background(), ch, get, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "svc", v)
}

func TestSignalProbe_WithGate(t *testing.T) {
	ch := make(chan struct{})
	go func() {
		time.Sleep(15 * time.Millisecond)
		close(ch)
	}()

	g := NewGate(SignalProbe(ch, func() (int, error) { return 7, nil }, 10*time.Millisecond), time.Millisecond, 10)
	v, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
