package search

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

func TestPool_BoundsConcurrency(t *testing.T) {
	// Given: a pool of two slots
	p := NewPool(2)
	var running, peak atomic.Int32

	// When: ten callers run at once
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Run(context.Background(), p, func(ctx context.Context) (int, error) {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return 0, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Then: never more than two ran together
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 2, p.Size())
}

func TestRun_ReturnsValueAndError(t *testing.T) {
	p := NewPool(1)

	v, err := Run(context.Background(), p, func(context.Context) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	_, err = Run(context.Background(), p, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestRun_CallerStopsWaitingAtDeadline(t *testing.T) {
	// Given: a call that ignores its context
	p := NewPool(1)
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// When: running it
	start := time.Now()
	_, err := Run(ctx, p, func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	// Then: the caller gets the deadline without waiting for the call
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_FullPoolHonorsDeadline(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Run(context.Background(), p, func(context.Context) (int, error) {
			close(started)
			<-release
			return 0, nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	called := false
	_, err := Run(ctx, p, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestNewPool_MinimumOneSlot(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Size())
}
