package fleet

import (
	"context"
	"sync"
)

// KeyedSerializer provides per-key mutual exclusion with strict FIFO
// ordering. Actions submitted under the same key execute one at a time, in
// submission order; actions under different keys run fully concurrently.
//
// A failing action propagates its error to its own caller only; the next
// queued action under the same key still runs. Results are never cached;
// every call executes its action when its turn comes.
//
// Queue entries are transient: the internal bookkeeping for a key is
// discarded the instant its queue drains, so the serializer holds no
// per-device state between bursts.
//
// There is one process-wide KeyedSerializer, obtained by injection. It is
// never package-level state.
type KeyedSerializer struct {
	mu      sync.Mutex
	tails   map[string]chan struct{}
	pending map[string]int
}

// NewKeyedSerializer creates an empty serializer.
func NewKeyedSerializer() *KeyedSerializer {
	return &KeyedSerializer{
		tails:   make(map[string]chan struct{}),
		pending: make(map[string]int),
	}
}

// Run executes fn once the key's queue reaches it. The call blocks until fn
// has run, or until ctx is cancelled while still waiting in the queue.
//
// Cancellation while queued abandons the action but preserves FIFO ordering
// for everything queued behind it: the abandoned slot is released only after
// its predecessor finishes.
func (s *KeyedSerializer) Run(ctx context.Context, key string, fn func(context.Context) error) error {
	s.mu.Lock()
	prev := s.tails[key]
	turn := make(chan struct{})
	s.tails[key] = turn
	s.pending[key]++
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Release our slot only after the predecessor drains so the
			// successor cannot overlap with it.
			go func() {
				<-prev
				s.finish(key, turn)
			}()
			return ctx.Err()
		}
	}

	err := fn(ctx)
	s.finish(key, turn)
	return err
}

// QueueLength reports how many actions are queued or running for key.
// Intended for tests and diagnostics.
func (s *KeyedSerializer) QueueLength(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[key]
}

// finish releases the slot and discards the key's bookkeeping when the
// queue drains.
func (s *KeyedSerializer) finish(key string, turn chan struct{}) {
	close(turn)

	s.mu.Lock()
	s.pending[key]--
	if s.pending[key] == 0 {
		delete(s.pending, key)
		if s.tails[key] == turn {
			delete(s.tails, key)
		}
	}
	s.mu.Unlock()
}
