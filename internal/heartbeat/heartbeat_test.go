package heartbeat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// slowAction counts invocations and tracks the highest observed concurrency.
type slowAction struct {
	took    time.Duration
	calls   atomic.Int32
	running atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowAction) do(ctx context.Context) error {
	s.calls.Add(1)
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		cur := s.maxSeen.Load()
		if n <= cur || s.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	select {
	case <-time.After(s.took):
	case <-ctx.Done():
	}
	return nil
}

func TestHeartbeater_SlowActionSkipsOverlappingTicks(t *testing.T) {
	t.Parallel()

	// interval 100ms, action 150ms, immediate first run: runs at 0 and 200,
	// ticks at 100 and 300 are skipped.
	a := &slowAction{took: 150 * time.Millisecond}
	h := New("quote", a.do, true)
	require.NoError(t, h.Start(100*time.Millisecond))

	time.Sleep(320 * time.Millisecond)
	require.Equal(t, int32(2), a.calls.Load())

	h.Stop()
	h.Wait()
	require.Equal(t, int32(1), a.maxSeen.Load())
}

func TestHeartbeater_InvocationsNeverExceedIntervals(t *testing.T) {
	t.Parallel()

	a := &slowAction{took: 45 * time.Millisecond}
	h := New("account", a.do, false)
	require.NoError(t, h.Start(20*time.Millisecond))

	time.Sleep(210 * time.Millisecond)
	h.Stop()
	h.Wait()

	require.Positive(t, a.calls.Load())
	require.LessOrEqual(t, a.calls.Load(), int32(10))
	require.Equal(t, int32(1), a.maxSeen.Load())
}

func TestHeartbeater_WithoutImmediateRunWaitsOneInterval(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := New("quote", func(context.Context) error { calls.Add(1); return nil }, false)
	require.NoError(t, h.Start(80*time.Millisecond))
	defer h.Stop()

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, calls.Load())
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeater_FailuresDoNotStopSchedule(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	h := New("flaky", func(context.Context) error {
		if calls.Add(1)%2 == 0 {
			panic("boom")
		}
		return errors.New("upstream down")
	}, true)
	require.NoError(t, h.Start(10*time.Millisecond))
	defer h.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 5 }, time.Second, 5*time.Millisecond)
	require.True(t, h.Running())
}

func TestHeartbeater_StartStop(t *testing.T) {
	t.Parallel()

	h := New("noop", func(context.Context) error { return nil }, false)
	require.ErrorIs(t, h.Start(0), ErrInvalidInterval)

	require.NoError(t, h.Start(time.Hour))
	require.ErrorIs(t, h.Start(time.Hour), ErrAlreadyStarted)

	h.Stop()
	h.Stop()
	require.False(t, h.Running())

	// restart after stop is allowed
	require.NoError(t, h.Start(time.Hour))
	h.Stop()
}

func TestHeartbeater_StopCancelsActionContext(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	canceled := make(chan struct{})
	h := New("blocking", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}, true)
	require.NoError(t, h.Start(time.Hour))
	<-started

	h.Stop()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("action context was not canceled")
	}
	h.Wait()
}
