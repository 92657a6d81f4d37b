package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSerializerFIFOOrder(t *testing.T) {
	s := NewKeyedSerializer()

	const n = 20
	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)

	// Park the queue behind a gate so all submissions are enqueued before
	// any of them runs.
	gate := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Run(context.Background(), "dev1", func(context.Context) error {
			<-gate
			return nil
		})
	}()

	// Wait for the gate action to hold the key.
	waitFor(t, func() bool { return s.QueueLength("dev1") == 1 })

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(context.Background(), "dev1", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// Enqueue one at a time so submission order is deterministic.
		waitFor(t, func() bool { return s.QueueLength("dev1") == i+2 })
	}

	close(gate)
	wg.Wait()

	if len(order) != n {
		t.Fatalf("expected %d actions, ran %d", n, len(order))
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("action %d ran out of order: got position value %d", i, got)
		}
	}
}

func TestSerializerNoOverlapSameKey(t *testing.T) {
	s := NewKeyedSerializer()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Run(context.Background(), "dev1", func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most 1 concurrent action per key, saw %d", maxSeen)
	}
}

func TestSerializerDifferentKeysRunConcurrently(t *testing.T) {
	s := NewKeyedSerializer()

	aRunning := make(chan struct{})
	release := make(chan struct{})

	go s.Run(context.Background(), "dev1", func(context.Context) error {
		close(aRunning)
		<-release
		return nil
	})

	<-aRunning

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), "dev2", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("action under a different key blocked behind dev1")
	}
	close(release)
}

func TestSerializerErrorDoesNotPoisonQueue(t *testing.T) {
	s := NewKeyedSerializer()
	boom := errors.New("boom")

	if err := s.Run(context.Background(), "dev1", func(context.Context) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ran := false
	if err := s.Run(context.Background(), "dev1", func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("follow-up action failed: %v", err)
	}
	if !ran {
		t.Fatal("follow-up action did not run after a failure")
	}
}

func TestSerializerCancelWhileQueued(t *testing.T) {
	s := NewKeyedSerializer()

	release := make(chan struct{})
	running := make(chan struct{})
	go s.Run(context.Background(), "dev1", func(context.Context) error {
		close(running)
		<-release
		return nil
	})
	<-running

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, "dev1", func(context.Context) error {
			t.Error("cancelled action must not run")
			return nil
		})
	}()

	waitFor(t, func() bool { return s.QueueLength("dev1") == 2 })
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	// A successor queued behind the abandoned slot still runs, after the
	// head finishes.
	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), "dev1", func(context.Context) error { return nil })
		close(done)
	}()

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("successor never ran after an abandoned slot")
	}

	waitFor(t, func() bool { return s.QueueLength("dev1") == 0 })
}

func TestSerializerBookkeepingDiscardedOnDrain(t *testing.T) {
	s := NewKeyedSerializer()

	s.Run(context.Background(), "dev1", func(context.Context) error { return nil })

	s.mu.Lock()
	tails, pending := len(s.tails), len(s.pending)
	s.mu.Unlock()

	if tails != 0 || pending != 0 {
		t.Fatalf("expected empty bookkeeping after drain, got tails=%d pending=%d", tails, pending)
	}
}

// waitFor polls cond until it holds or the test deadline is hit.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
