package search

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent store calls across all requests.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool of n slots (at least one).
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Run executes fn in a pool slot. The caller stops waiting as soon as ctx is
// done; fn keeps its slot until it actually returns, so a slow store cannot
// be flooded with more than Size calls.
func Run[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		select {
		case r := <-done:
			return r.v, r.err
		default:
			return zero, ctx.Err()
		}
	}
}
