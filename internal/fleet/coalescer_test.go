package fleet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescerCollapsesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	c := NewCoalescer(0, func(context.Context) (int, error) {
		calls.Add(1)
		close(started)
		<-release
		return 42, nil
	})

	const waiters = 5
	var wg sync.WaitGroup
	results := make([]int, waiters)
	errs := make([]error, waiters)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Invoke(context.Background())
	}()
	<-started

	for i := 1; i < waiters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Invoke(context.Background())
		}()
	}

	// Let the joiners attach before the producer settles.
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("producer ran %d times, want 1", got)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d: unexpected error %v", i, errs[i])
		}
		if results[i] != 42 {
			t.Fatalf("waiter %d: got %d, want 42", i, results[i])
		}
	}
}

func TestCoalescerSharesErrors(t *testing.T) {
	boom := errors.New("boom")
	release := make(chan struct{})
	started := make(chan struct{})

	c := NewCoalescer(0, func(context.Context) (int, error) {
		close(started)
		<-release
		return 0, boom
	})

	errCh := make(chan error, 2)
	go func() { _, err := c.Invoke(context.Background()); errCh <- err }()
	<-started
	go func() { _, err := c.Invoke(context.Background()); errCh <- err }()

	time.Sleep(10 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errCh; !errors.Is(err, boom) {
			t.Fatalf("waiter %d: expected boom, got %v", i, err)
		}
	}
}

func TestCoalescerFreshCallAfterSettle(t *testing.T) {
	var calls atomic.Int32
	c := NewCoalescer(0, func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	})

	first, err := c.Invoke(context.Background())
	if err != nil || first != 1 {
		t.Fatalf("first call: got (%d, %v), want (1, nil)", first, err)
	}

	second, err := c.Invoke(context.Background())
	if err != nil || second != 2 {
		t.Fatalf("second call: got (%d, %v), want (2, nil)", second, err)
	}
}

func TestCoalescerWindowJoinsNearSimultaneousCallers(t *testing.T) {
	var calls atomic.Int32
	c := NewCoalescer(50*time.Millisecond, func(context.Context) (int, error) {
		calls.Add(1)
		return 7, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := c.Invoke(context.Background()); err != nil || v != 7 {
				t.Errorf("got (%d, %v), want (7, nil)", v, err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("producer ran %d times, want 1", got)
	}
}

func TestCoalescerCancelDuringWindowReleasesJoiners(t *testing.T) {
	c := NewCoalescer(time.Hour, func(context.Context) (int, error) {
		t.Error("producer must not run when the opener is cancelled in the window")
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	openerErr := make(chan error, 1)
	go func() { _, err := c.Invoke(ctx); openerErr <- err }()

	// Give the opener time to arm the window, then join with a live ctx.
	time.Sleep(10 * time.Millisecond)
	joinerErr := make(chan error, 1)
	go func() { _, err := c.Invoke(context.Background()); joinerErr <- err }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-openerErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("opener: expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("opener did not return after cancel")
	}

	select {
	case err := <-joinerErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("joiner: expected shared context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("joiner hung after the opener was cancelled")
	}
}
