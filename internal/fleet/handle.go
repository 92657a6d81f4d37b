package fleet

import (
	"sync"
	"time"
)

// Handle is the long-lived object bound 1:1 to a physical device's identity.
// It owns the device's last applied snapshot, lifecycle, and the registry of
// in-flight operations used to coordinate commands against refreshes.
//
// Handles are created on discovery and destroyed on explicit removal or
// process shutdown.
type Handle struct {
	id   string
	caps Capabilities
	life *Lifecycle

	// mu guards host, alias and prev. Mutation happens only inside the
	// device's serializer key; the mutex exists so UI-facing reads are safe
	// without joining the queue.
	mu    sync.RWMutex
	host  string
	alias string
	prev  *Snapshot

	// opMu guards the in-flight operation registry, keyed by lock key.
	// Each entry's channel closes when the operation releases its waiters.
	opMu sync.Mutex
	ops  map[string]chan struct{}

	sync *Synchronizer
}

func newHandle(id, host, alias string, caps Capabilities, initial *Snapshot) *Handle {
	return &Handle{
		id:    id,
		host:  host,
		alias: alias,
		caps:  caps,
		life:  NewLifecycle(),
		prev:  initial.Clone(),
		ops:   make(map[string]chan struct{}),
	}
}

// ID returns the stable device identifier.
func (h *Handle) ID() string { return h.id }

// Host returns the device's current network address.
func (h *Handle) Host() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.host
}

// Alias returns the user-visible device name.
func (h *Handle) Alias() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.alias
}

// Capabilities returns the device's shape descriptor.
func (h *Handle) Capabilities() Capabilities { return h.caps }

// Lifecycle returns the device's lifecycle state machine.
func (h *Handle) Lifecycle() *Lifecycle { return h.life }

// Key returns the whole-device lock key.
func (h *Handle) Key() string { return h.id }

// SubKey returns the lock key for one sub-device, or the whole-device key
// when subID is empty. Commands to two different sub-devices of one physical
// device proceed independently; a whole-device refresh serializes with both.
func (h *Handle) SubKey(subID string) string {
	if subID == "" {
		return h.id
	}
	return h.id + "/" + subID
}

// setHost updates the address and alias after rediscovery.
func (h *Handle) setHost(host, alias string) {
	h.mu.Lock()
	h.host = host
	if alias != "" {
		h.alias = alias
	}
	h.mu.Unlock()
}

// Previous returns a copy of the last applied snapshot.
func (h *Handle) Previous() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.prev.Clone()
}

// previous returns the snapshot without copying; callers must not mutate it.
func (h *Handle) previous() *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.prev
}

// replacePrevious atomically installs a fully applied snapshot.
func (h *Handle) replacePrevious(s *Snapshot) {
	h.mu.Lock()
	h.prev = s
	h.mu.Unlock()
}

// Value is a lock-free best-effort read of one attribute from the last
// applied snapshot. It never triggers network I/O and never blocks on an
// in-flight refresh.
func (h *Handle) Value(subID string, attr Attribute) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.prev == nil {
		return nil, false
	}
	values := h.prev.Values
	if subID != "" {
		child, ok := h.prev.Children[subID]
		if !ok {
			return nil, false
		}
		values = child.Values
	}
	v, ok := values[attr]
	return v, ok
}

// childIndex resolves a stable sub-device ID to the positional index the
// remote control API requires, from the last applied snapshot.
func (h *Handle) childIndex(subID string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.prev == nil {
		return 0, false
	}
	child, ok := h.prev.Children[subID]
	if !ok {
		return 0, false
	}
	return child.Index, true
}

// applyLocal applies an optimistic attribute change (plus derived values) to
// the last applied snapshot and returns the resulting change notifications.
// Called only from inside the device's serializer key.
func (h *Handle) applyLocal(subID string, values map[Attribute]any) []Change {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.prev == nil {
		return nil
	}

	next := h.prev.Clone()
	target := next.Values
	if subID != "" {
		child, ok := next.Children[subID]
		if !ok {
			return nil
		}
		target = child.Values
	}

	var changes []Change
	for _, attr := range attributeOrder {
		v, ok := values[attr]
		if !ok {
			continue
		}
		v = NormalizeValue(v)
		if old, had := target[attr]; had && valuesEqual(NormalizeValue(old), v) {
			continue
		}
		target[attr] = v
		changes = append(changes, Change{
			DeviceID:  h.id,
			SubID:     subID,
			Attribute: attr,
			Value:     v,
		})
	}

	next.TakenAt = time.Now().UTC()
	h.prev = next
	return changes
}

// claimOp registers an in-flight operation for key if no conflicting
// operation is in flight, atomically with the conflict check. On conflict it
// returns the conflicting operation's done channel instead; the caller waits
// on it and retries. The whole-device key conflicts with every in-flight
// operation, a sub-device key with itself and the whole-device key. The
// check-then-register must be one critical section or two claimants can pass
// each other's check and run concurrently.
func (h *Handle) claimOp(key string) (conflict <-chan struct{}, claimed bool) {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	if ch, ok := h.ops[key]; ok {
		return ch, false
	}
	if key == h.id {
		for _, ch := range h.ops {
			return ch, false
		}
	} else if ch, ok := h.ops[h.id]; ok {
		return ch, false
	}

	h.ops[key] = make(chan struct{})
	return nil, true
}

// endOp releases all waiters for key. It must run on every exit path of an
// operation, success or failure, or waiters hang indefinitely.
func (h *Handle) endOp(key string) {
	h.opMu.Lock()
	ch := h.ops[key]
	delete(h.ops, key)
	h.opMu.Unlock()

	if ch != nil {
		close(ch)
	}
}

// conflictWith returns the done channel of an in-flight operation that
// conflicts with key: one under the same key, or one under the whole-device
// key. Returns nil when the key is free.
func (h *Handle) conflictWith(key string) <-chan struct{} {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	if ch, ok := h.ops[key]; ok {
		return ch
	}
	if key != h.id {
		if ch, ok := h.ops[h.id]; ok {
			return ch
		}
	}
	return nil
}

// anyInflight returns the done channel of any in-flight operation on the
// device, or nil. A whole-device refresh must not read mid-write, whichever
// channel the write went to.
func (h *Handle) anyInflight() <-chan struct{} {
	h.opMu.Lock()
	defer h.opMu.Unlock()

	for _, ch := range h.ops {
		return ch
	}
	return nil
}

// pollingActive reports whether the device still has an active polling loop.
// Used to abandon commands that were parked behind a discovery sweep when
// the device did not come back from it.
func (h *Handle) pollingActive() bool {
	if !h.life.Running() {
		return false
	}
	if h.sync == nil {
		return true
	}
	return h.sync.State() != StateSuspended
}
