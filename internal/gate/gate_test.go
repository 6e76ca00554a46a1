package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestGate(maxConc, queueMax int) *Gate {
	return New(Config{
		MaxConcurrency: maxConc,
		QueueMax:       queueMax,
		JobEstimate:    3 * time.Second,
	})
}

func TestGate_AcquireBelowCapacityIsImmediate(t *testing.T) {
	t.Parallel()

	g := newTestGate(2, 8)

	slot, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Equal(t, 1, g.Stats().Running)
	require.Equal(t, 0, g.Stats().Queued)

	slot.Release()
	require.Equal(t, 0, g.Stats().Running)
}

func TestGate_WaitersResumeInFIFOOrder(t *testing.T) {
	t.Parallel()

	g := newTestGate(1, 8)

	first, err := g.Acquire(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	started := make(chan struct{}, 3)
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Stagger entry so queue order matches i.
			<-started
			slot, err := g.Acquire(context.Background())
			require.NoError(t, err)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			slot.Release()
		}()
		started <- struct{}{}
		require.Eventually(t, func() bool {
			return g.Stats().Queued == i
		}, time.Second, time.Millisecond)
	}

	first.Release()
	wg.Wait()

	require.Equal(t, []int{1, 2, 3}, order)
	require.Equal(t, 0, g.Stats().Running)
	require.Equal(t, 0, g.Stats().Queued)
}

func TestGate_FullQueueFailsFastWithBusy(t *testing.T) {
	t.Parallel()

	g := newTestGate(1, 1)

	slot, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer slot.Release()

	waiting := make(chan struct{})
	go func() {
		close(waiting)
		s, err := g.Acquire(context.Background())
		if err == nil {
			s.Release()
		}
	}()
	<-waiting
	require.Eventually(t, func() bool {
		return g.Stats().Queued == 1
	}, time.Second, time.Millisecond)

	_, err = g.Acquire(context.Background())
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	require.GreaterOrEqual(t, busy.RetryAfter, time.Second)
	require.LessOrEqual(t, busy.RetryAfter, 15*time.Second)
}

func TestGate_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	g := newTestGate(2, 8)

	slot, err := g.Acquire(context.Background())
	require.NoError(t, err)

	slot.Release()
	slot.Release()
	slot.Release()

	require.Equal(t, 0, g.Stats().Running)

	// A fresh acquire still works and the counter never went negative.
	next, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, g.Stats().Running)
	next.Release()
}

func TestGate_RunningNeverExceedsMax(t *testing.T) {
	t.Parallel()

	g := newTestGate(2, 8)

	var wg sync.WaitGroup
	var mu sync.Mutex
	peak := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := g.Acquire(context.Background())
			if err != nil {
				return
			}
			mu.Lock()
			if r := g.Stats().Running; r > peak {
				peak = r
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			slot.Release()
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak, 2)
	require.Equal(t, 0, g.Stats().Running)
}

func TestGate_ThirdJobWaitsUntilRelease(t *testing.T) {
	t.Parallel()

	g := newTestGate(2, 8)

	a, err := g.Acquire(context.Background())
	require.NoError(t, err)
	b, err := g.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, g.Stats().Running)

	acquired := make(chan *Slot, 1)
	go func() {
		slot, err := g.Acquire(context.Background())
		require.NoError(t, err)
		acquired <- slot
	}()

	require.Eventually(t, func() bool {
		return g.Stats().Queued == 1
	}, time.Second, time.Millisecond)

	select {
	case <-acquired:
		t.Fatal("third job ran while gate was saturated")
	case <-time.After(50 * time.Millisecond):
	}

	a.Release()
	select {
	case slot := <-acquired:
		require.Equal(t, 2, g.Stats().Running)
		slot.Release()
	case <-time.After(time.Second):
		t.Fatal("queued job was not promoted after release")
	}
	b.Release()
}

func TestGate_CanceledWaiterLeavesQueue(t *testing.T) {
	t.Parallel()

	g := newTestGate(1, 8)

	slot, err := g.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx)
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		return g.Stats().Queued == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.Equal(t, 0, g.Stats().Queued)

	slot.Release()
	require.Equal(t, 0, g.Stats().Running)
}

func TestGate_RetryHintScalesWithQueueDepth(t *testing.T) {
	t.Parallel()

	g := New(Config{
		MaxConcurrency: 2,
		QueueMax:       8,
		JobEstimate:    3 * time.Second,
	})
	// Empty queue: one wave.
	require.Equal(t, 3*time.Second, g.RetryHint())
}

func TestDeriveConcurrency(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, DeriveConcurrency(1))
	require.Equal(t, 2, DeriveConcurrency(2))
	require.Equal(t, 2, DeriveConcurrency(16))
}
