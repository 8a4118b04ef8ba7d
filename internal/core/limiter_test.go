package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AcquireRelease(t *testing.T) {
	l := NewLimiter(2, time.Second)
	ctx := context.Background()

	assert.Equal(t, LimiterStatus{Active: 0, Available: 2, MaxConcurrent: 2}, l.Status())

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, 2, l.Active())
	assert.Equal(t, 0, l.Status().Available)
	assert.False(t, l.TryAcquire())

	l.Release()
	assert.Equal(t, 1, l.Active())
	assert.True(t, l.TryAcquire())
	l.Release()
	l.Release()
	assert.Equal(t, 0, l.Active())
}

func TestLimiter_TimesOutWhenFull(t *testing.T) {
	l := NewLimiter(1, 50*time.Millisecond)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	start := time.Now()
	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrTooManyRuns)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}

func TestLimiter_Defaults(t *testing.T) {
	l := NewLimiter(0, 0)
	assert.Equal(t, DefaultMaxConcurrentRuns, l.Status().MaxConcurrent)
	assert.Equal(t, DefaultMaxWaitTime, l.maxWait)
}

func TestLimiter_NeverExceedsMax(t *testing.T) {
	const maxConcurrent = 3
	l := NewLimiter(maxConcurrent, 5*time.Second)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		maxObserved int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer l.Release()

			mu.Lock()
			maxObserved = max(maxObserved, l.Active())
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxObserved, maxConcurrent)
	assert.Equal(t, 0, l.Active())
}

func TestLimiter_WaitForDrain(t *testing.T) {
	l := NewLimiter(1, time.Second)
	require.NoError(t, l.Acquire(context.Background()))

	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Release()
	}()
	require.NoError(t, l.WaitForDrain(context.Background()))

	require.NoError(t, l.Acquire(context.Background()))
	defer l.Release()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.WaitForDrain(ctx), context.DeadlineExceeded)
}
