package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherBoundsConcurrency(t *testing.T) {
	d := NewDispatcher(3, 0, time.Millisecond)

	var current, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, d.Acquire(context.Background())) {
				return
			}
			defer d.Release()

			n := atomic.AddInt64(&current, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&current, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
	assert.Equal(t, int64(0), atomic.LoadInt64(&current))
}

func TestDispatcherMemoryGate(t *testing.T) {
	t.Run("waits until memory drops", func(t *testing.T) {
		d := NewDispatcher(1, 70, time.Millisecond)

		var probes int32
		d.memPercent = func() (float64, error) {
			if atomic.AddInt32(&probes, 1) < 3 {
				return 95, nil
			}
			return 40, nil
		}

		require.NoError(t, d.Acquire(context.Background()))
		d.Release()
		assert.GreaterOrEqual(t, atomic.LoadInt32(&probes), int32(3))
	})

	t.Run("disabled when threshold is zero", func(t *testing.T) {
		d := NewDispatcher(1, 0, time.Millisecond)
		d.memPercent = func() (float64, error) {
			t.Fatal("memory probe should not run")
			return 0, nil
		}
		require.NoError(t, d.Acquire(context.Background()))
		d.Release()
	})

	t.Run("probe failure does not block", func(t *testing.T) {
		d := NewDispatcher(1, 70, time.Millisecond)
		d.memPercent = func() (float64, error) {
			return 0, errors.New("sysfs unreadable")
		}
		require.NoError(t, d.Acquire(context.Background()))
		d.Release()
	})
}

func TestDispatcherAcquireCancel(t *testing.T) {
	t.Run("while waiting for memory", func(t *testing.T) {
		d := NewDispatcher(1, 70, time.Hour)
		d.memPercent = func() (float64, error) { return 99, nil }

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		assert.ErrorIs(t, d.Acquire(ctx), context.Canceled)
	})

	t.Run("while waiting for a permit", func(t *testing.T) {
		d := NewDispatcher(1, 0, time.Millisecond)
		require.NoError(t, d.Acquire(context.Background()))
		defer d.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, d.Acquire(ctx), context.DeadlineExceeded)
	})
}
