package fleet

import (
	"context"
	"sync"
	"time"
)

// Coalescer collapses concurrent requests for the same expensive read into
// one underlying call, sharing the outcome with every waiter.
//
// While a call is outstanding, every additional Invoke joins it and receives
// the identical result. Once the outstanding call settles, the next Invoke
// starts fresh. An optional leading window delays the first caller so that
// near-simultaneous callers (a polling tick plus several UI reads) join the
// same call instead of each producing a remote round-trip.
type Coalescer[T any] struct {
	window  time.Duration
	produce func(context.Context) (T, error)

	mu       sync.Mutex
	inflight *sharedCall[T]
}

// sharedCall carries one outcome to every joined waiter.
type sharedCall[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewCoalescer wraps produce with coalescing. window may be zero to start
// the call immediately on first Invoke.
func NewCoalescer[T any](window time.Duration, produce func(context.Context) (T, error)) *Coalescer[T] {
	return &Coalescer[T]{
		window:  window,
		produce: produce,
	}
}

// Invoke returns the producer's outcome, either by starting a call or by
// joining the one already outstanding. A joined waiter whose ctx is
// cancelled detaches with ctx.Err(); the underlying call keeps running for
// the remaining waiters.
func (c *Coalescer[T]) Invoke(ctx context.Context) (T, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.val, call.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}

	call := &sharedCall[T]{done: make(chan struct{})}
	c.inflight = call
	c.mu.Unlock()

	if c.window > 0 {
		timer := time.NewTimer(c.window)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// Settle with the cancellation so joined waiters do not hang.
			call.err = ctx.Err()
			c.settle(call)
			var zero T
			return zero, call.err
		}
	}

	call.val, call.err = c.produce(ctx)
	c.settle(call)
	return call.val, call.err
}

// settle publishes the outcome and opens the coalescer for a fresh call.
func (c *Coalescer[T]) settle(call *sharedCall[T]) {
	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(call.done)
}
