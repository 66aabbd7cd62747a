package errors

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

// fakeClock lets tests move the breaker's notion of time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(maxFailures int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("store", WithMaxFailures(maxFailures), WithResetTimeout(reset))
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that trips after 3 failures
	cb, _ := newTestBreaker(3, time.Second)

	// When: three calls fail
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("store down") })
	}

	// Then: the circuit is open and calls are rejected without running
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	// Given: a tripped breaker
	cb, clock := newTestBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("store down") })
	}
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses and the probe succeeds
	clock.Advance(60 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	err := cb.Execute(func() error { return nil })

	// Then: the circuit closes
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(2, 50*time.Millisecond)
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("store down") })
	}
	clock.Advance(60 * time.Millisecond)

	err := cb.Execute(func() error { return errors.New("still down") })

	assert.Error(t, err)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, 10*time.Millisecond)
	cb.RecordFailure()
	clock.Advance(20 * time.Millisecond)

	assert.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "second caller must wait for the probe")

	cb.RecordSuccess()
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Failures())
}

func TestCircuitExecute_ReturnsValue(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Second)

	got, err := CircuitExecute(cb, func() (int, error) { return 42, nil }, nil)

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCircuitExecute_IgnoredErrorsDoNotTrip(t *testing.T) {
	// Given: a breaker that trips on the first failure
	cb, _ := newTestBreaker(1, time.Second)
	ignoreCanceled := func(err error) bool { return errors.Is(err, context.Canceled) }

	// When: the call fails because the caller went away
	_, err := CircuitExecute(cb, func() (int, error) { return 0, context.Canceled }, ignoreCanceled)

	// Then: the error is returned but the circuit stays closed
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitExecute_OpenReturnsZero(t *testing.T) {
	cb, _ := newTestBreaker(1, time.Second)
	cb.RecordFailure()

	got, err := CircuitExecute(cb, func() (string, error) { return "x", nil }, nil)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Empty(t, got)
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	cb := NewCircuitBreaker("store", WithMaxFailures(1000))

	var wg sync.WaitGroup
	var calls atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(func() error {
				calls.Add(1)
				if i%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(50), calls.Load())
	assert.Equal(t, StateClosed, cb.State())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("store", WithMaxFailures(0), WithResetTimeout(-1))

	assert.Equal(t, "store", cb.Name())
	assert.Equal(t, 5, cb.maxFailures)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
