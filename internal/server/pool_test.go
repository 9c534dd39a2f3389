package server

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestPool(t *testing.T, size int, opts ...PoolOption) *Pool {
	t.Helper()

	opts = append([]PoolOption{WithPoolLogger(quietEntry())}, opts...)
	pool, err := NewPool(size, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown(5 * time.Second) })
	return pool
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for tasks")
	}
}

func TestNewPoolRejectsInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		pool, err := NewPool(size)
		assert.Nil(t, pool)
		assert.ErrorIs(t, err, ErrInvalidPoolSize)
	}
}

// TestPoolRunsEveryTaskOnce verifies that concurrently submitted tasks are
// neither lost nor duplicated.
func TestPoolRunsEveryTaskOnce(t *testing.T) {
	pool := newTestPool(t, 4)

	const total = 500
	var wg sync.WaitGroup
	counts := make([]atomic.Int32, total)

	wg.Add(total)
	var submitters sync.WaitGroup
	for g := 0; g < 10; g++ {
		submitters.Add(1)
		go func(g int) {
			defer submitters.Done()
			for i := g; i < total; i += 10 {
				assert.NoError(t, pool.Submit(func() {
					defer wg.Done()
					counts[i].Add(1)
				}))
			}
		}(g)
	}
	submitters.Wait()
	waitTimeout(t, &wg, 5*time.Second)

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "task %d", i)
	}
	assert.Equal(t, 0, pool.Pending())
}

// TestPoolBoundsConcurrency verifies no more than Size tasks run at once.
func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	pool := newTestPool(t, size)
	assert.Equal(t, size, pool.Size())

	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
		}))
	}
	waitTimeout(t, &wg, 5*time.Second)

	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.Positive(t, peak.Load())
}

// TestPoolSubmitDoesNotBlock verifies Submit returns while every worker is
// busy and that queued tasks start in submission order.
func TestPoolSubmitDoesNotBlock(t *testing.T) {
	pool := newTestPool(t, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	begin := time.Now()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
	assert.Equal(t, 10, pool.Pending())

	close(release)
	waitTimeout(t, &wg, 5*time.Second)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

// TestPoolContainsPanics verifies a panicking task does not take its worker down.
func TestPoolContainsPanics(t *testing.T) {
	pool := newTestPool(t, 1)

	require.NoError(t, pool.Submit(func() {
		panic("boom")
	}))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestPoolQueueLimit(t *testing.T) {
	pool := newTestPool(t, 1, WithQueueLimit(2))

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, pool.Submit(func() {}))
	require.NoError(t, pool.Submit(func() {}))
	assert.ErrorIs(t, pool.Submit(func() {}), ErrQueueFull)
	assert.Equal(t, 2, pool.Pending())

	close(release)
	assert.Eventually(t, func() bool {
		return pool.Submit(func() {}) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

// TestPoolShutdownDrains verifies queued and in-flight tasks finish before
// Shutdown returns, and that later submissions are refused.
func TestPoolShutdownDrains(t *testing.T) {
	pool, err := NewPool(2, WithPoolLogger(quietEntry()))
	require.NoError(t, err)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(func() {
			time.Sleep(10 * time.Millisecond)
			ran.Add(1)
		}))
	}

	require.NoError(t, pool.Shutdown(5*time.Second))
	assert.Equal(t, int32(10), ran.Load())
	assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
	assert.NoError(t, pool.Shutdown(time.Second))
}

func TestPoolShutdownTimeout(t *testing.T) {
	pool, err := NewPool(1, WithPoolLogger(quietEntry()))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started

	start := time.Now()
	err = pool.Shutdown(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, time.Second)
}

func TestPoolSubmitNil(t *testing.T) {
	pool := newTestPool(t, 1)

	assert.NoError(t, pool.Submit(nil))
	assert.Equal(t, 0, pool.Pending())
}
