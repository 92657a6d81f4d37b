package fleet

import "sync"

// defaultEventBuffer is the per-subscriber channel depth.
const defaultEventBuffer = 64

// broker fans change notifications out to subscribers. Delivery is
// non-blocking: a subscriber that falls behind loses events rather than
// stalling the synchronizers that publish them.
type broker struct {
	mu     sync.Mutex
	subs   map[int]chan Change
	next   int
	buffer int
	closed bool
}

func newBroker(buffer int) *broker {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &broker{
		subs:   make(map[int]chan Change),
		buffer: buffer,
	}
}

// subscribe registers a new subscriber. The returned cancel function is
// idempotent and closes the subscriber's channel; subscriptions are
// finite-duration and restartable.
func (b *broker) subscribe() (<-chan Change, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Change, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish delivers one change to every subscriber, dropping it for any
// subscriber whose buffer is full.
func (b *broker) publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// close shuts down every subscription. Called once, after all publishers
// have stopped.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
