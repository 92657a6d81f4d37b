package fleet

import (
	"context"
	"sync"
	"time"
)

// Logger is the minimal structured logging interface the fleet needs.
// Satisfied by infrastructure/logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards everything. Used when no logger is configured, mostly
// in tests.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DeviceClient is the remote transport the fleet drives. Implemented by the
// kasa HTTP client; tests substitute mocks.
type DeviceClient interface {
	// FetchState retrieves the device's full current state.
	FetchState(ctx context.Context, host string) (*Snapshot, error)

	// Control applies one attribute change. childIndex is the positional
	// sub-device index, or -1 to address the whole device.
	Control(ctx context.Context, host string, attr Attribute, value any, childIndex int) error
}

// Default timing parameters, overridable via Options.
const (
	defaultPollInterval   = 10 * time.Second
	defaultCoalesceWindow = 100 * time.Millisecond
	defaultSettleDelay    = 5 * time.Minute
)

// Options configures a Fleet.
type Options struct {
	Client DeviceClient
	Logger Logger

	// PollInterval is the fixed per-device refresh period.
	PollInterval time.Duration

	// CoalesceWindow is how long the first state fetch waits for joiners
	// before hitting the device.
	CoalesceWindow time.Duration

	// SettleDelay is how long a command parked behind a discovery sweep
	// waits after the sweep completes. Conventionally one discovery
	// interval.
	SettleDelay time.Duration

	// EventBuffer is the per-subscriber change channel depth.
	EventBuffer int
}

// Fleet is the registry of mirrored devices. It owns the shared serializer,
// the change broker and the per-device synchronizer goroutines, and is the
// only entry point for reads, commands, discovery results and shutdown.
type Fleet struct {
	client DeviceClient
	logger Logger

	ser    *KeyedSerializer
	events *broker
	coord  *Coordinator

	pollInterval   time.Duration
	coalesceWindow time.Duration

	mu      sync.RWMutex
	handles map[string]*Handle

	// sweepMu guards the discovery sweep signal. sweepDone is non-nil and
	// open exactly while a sweep runs.
	sweepMu   sync.Mutex
	sweepDone chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Fleet around the given remote client.
func New(opts Options) *Fleet {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.CoalesceWindow <= 0 {
		opts.CoalesceWindow = defaultCoalesceWindow
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}

	f := &Fleet{
		client:         opts.Client,
		logger:         opts.Logger,
		ser:            NewKeyedSerializer(),
		events:         newBroker(opts.EventBuffer),
		pollInterval:   opts.PollInterval,
		coalesceWindow: opts.CoalesceWindow,
		handles:        make(map[string]*Handle),
		done:           make(chan struct{}),
	}
	f.coord = newCoordinator(f.ser, opts.Client, f, f.events, opts.Logger, opts.SettleDelay, f.done)
	return f
}

// Upsert registers a discovered device, or refreshes the address of a known
// one. A known device that was offline is promoted back online and its
// polling resumed. The initial snapshot becomes the baseline for diffing; no
// change notifications are emitted for it.
func (f *Fleet) Upsert(id, host, alias string, caps Capabilities, initial *Snapshot) *Handle {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.handles[id]; ok {
		h.setHost(host, alias)
		if h.life.MarkOnline() {
			f.logger.Info("device back online", "device", id, "host", host)
		}
		if h.sync != nil {
			h.sync.Resume()
		}
		return h
	}

	h := newHandle(id, host, alias, caps, initial)
	fetch := NewCoalescer(f.coalesceWindow, func(ctx context.Context) (*Snapshot, error) {
		return f.client.FetchState(ctx, h.Host())
	})
	h.sync = newSynchronizer(h, f.ser, fetch, f.events, f, f.logger, f.pollInterval, f.done)
	f.handles[id] = h

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		h.sync.run()
	}()

	f.logger.Info("device registered", "device", id, "host", host, "alias", alias,
		"children", len(initial.Children))
	return h
}

// Resume promotes an offline device back online and restarts its polling
// loop, without waiting for the next discovery sweep. Returns false for an
// unknown device.
func (f *Fleet) Resume(id string) bool {
	h, ok := f.Get(id)
	if !ok {
		return false
	}
	if h.life.MarkOnline() {
		f.logger.Info("device resumed", "device", id)
	}
	if h.sync != nil {
		h.sync.Resume()
	}
	return true
}

// Remove deregisters a device, stopping its polling loop. Queued commands
// for it become logged no-ops.
func (f *Fleet) Remove(id string) {
	f.mu.Lock()
	h, ok := f.handles[id]
	if ok {
		delete(f.handles, id)
	}
	f.mu.Unlock()

	if !ok {
		return
	}
	h.life.MarkOffline()
	h.sync.Stop()
	f.logger.Info("device removed", "device", id)
}

// Get returns the handle for a device ID.
func (f *Fleet) Get(id string) (*Handle, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.handles[id]
	return h, ok
}

// Handles returns a snapshot of all registered handles.
func (f *Fleet) Handles() []*Handle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*Handle, 0, len(f.handles))
	for _, h := range f.handles {
		out = append(out, h)
	}
	return out
}

// GetValue is the lock-free read path. It never blocks and never errors: an
// unknown device, sub-device or attribute yields the attribute's safe
// default so callers always have something presentable. A device that is
// offline or shutting down also reads as its safe default; its last-known
// values are stale and must not present as live.
func (f *Fleet) GetValue(id, subID string, attr Attribute) any {
	h, ok := f.Get(id)
	if !ok {
		return SafeDefault(attr)
	}
	if !h.life.Running() {
		return SafeDefault(attr)
	}
	v, ok := h.Value(subID, attr)
	if !ok {
		return SafeDefault(attr)
	}
	return v
}

// SetValue issues a control command through the update coordinator. Remote
// failures are absorbed (the device goes offline); the errors that do come
// back are caller mistakes: ErrDeviceNotFound, ErrAttributeUnmapped,
// ErrSubDeviceUnknown, or context cancellation.
func (f *Fleet) SetValue(ctx context.Context, id, subID string, attr Attribute, value any) error {
	select {
	case <-f.done:
		return ErrShuttingDown
	default:
	}

	h, ok := f.Get(id)
	if !ok {
		return ErrDeviceNotFound
	}
	return f.coord.Set(ctx, h, subID, attr, value)
}

// Subscribe returns a channel of change notifications and a cancel function.
// Delivery is best-effort: slow subscribers lose events.
func (f *Fleet) Subscribe() (<-chan Change, func()) {
	return f.events.subscribe()
}

// BeginSweep marks a discovery sweep as running. Refreshes and commands
// arriving during the sweep park until CompleteSweep.
func (f *Fleet) BeginSweep() {
	f.sweepMu.Lock()
	defer f.sweepMu.Unlock()
	if f.sweepDone == nil {
		f.sweepDone = make(chan struct{})
	}
}

// CompleteSweep releases everything parked behind the sweep.
func (f *Fleet) CompleteSweep() {
	f.sweepMu.Lock()
	defer f.sweepMu.Unlock()
	if f.sweepDone != nil {
		close(f.sweepDone)
		f.sweepDone = nil
	}
}

// SweepPending implements sweepSignal.
func (f *Fleet) SweepPending() (bool, <-chan struct{}) {
	f.sweepMu.Lock()
	defer f.sweepMu.Unlock()
	if f.sweepDone == nil {
		return false, nil
	}
	return true, f.sweepDone
}

// Shutdown stops the fleet: every device lifecycle moves to ShuttingDown,
// queued commands drain as no-ops, polling loops exit, and the change broker
// closes after the last publisher stops. Idempotent.
func (f *Fleet) Shutdown() {
	f.stopOnce.Do(func() {
		f.logger.Info("fleet shutting down")

		f.mu.RLock()
		for _, h := range f.handles {
			h.life.BeginShutdown()
		}
		f.mu.RUnlock()

		// Unblock anything parked behind a sweep that will never complete.
		f.CompleteSweep()
		close(f.done)

		f.mu.RLock()
		for _, h := range f.handles {
			h.sync.Stop()
		}
		f.mu.RUnlock()

		f.wg.Wait()
		f.events.close()
		f.logger.Info("fleet stopped")
	})
}
