package fleet

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// SyncState is the polling state of one device's synchronizer.
type SyncState int32

// Synchronizer states.
const (
	// StatePolling: the poll timer is armed and ticking.
	StatePolling SyncState = iota

	// StateRefreshing: a refresh is in progress.
	StateRefreshing

	// StateSuspended: polling is halted. Terminal until Resume.
	StateSuspended
)

// String returns the state name for logging.
func (s SyncState) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateRefreshing:
		return "refreshing"
	case StateSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Synchronizer drives the periodic refresh loop for one device: fetch state,
// diff against the last applied snapshot, emit one change notification per
// changed attribute, replace the snapshot.
//
// Any fetch failure marks the device offline and halts polling; there is no
// automatic retry. Recovery requires an external rediscovery signal invoking
// Resume. The poll period is fixed at construction; the timer is torn down
// while suspended, so an offline device carries no active timer.
type Synchronizer struct {
	h      *Handle
	ser    *KeyedSerializer
	fetch  *Coalescer[*Snapshot]
	events *broker
	sweeps sweepSignal
	logger Logger
	period time.Duration

	state atomic.Int32

	resume  chan struct{}
	suspend chan struct{}
	stop    chan struct{}
	done    <-chan struct{}
}

// sweepSignal exposes the process-wide discovery sweep to per-device waits.
type sweepSignal interface {
	// SweepPending reports whether a sweep is running and, if so, returns a
	// channel closed when it completes.
	SweepPending() (bool, <-chan struct{})
}

func newSynchronizer(h *Handle, ser *KeyedSerializer, fetch *Coalescer[*Snapshot],
	events *broker, sweeps sweepSignal, logger Logger, period time.Duration,
	done <-chan struct{},
) *Synchronizer {
	s := &Synchronizer{
		h:       h,
		ser:     ser,
		fetch:   fetch,
		events:  events,
		sweeps:  sweeps,
		logger:  logger,
		period:  period,
		resume:  make(chan struct{}, 1),
		suspend: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    done,
	}
	s.state.Store(int32(StatePolling))
	return s
}

// State returns the current polling state.
func (s *Synchronizer) State() SyncState {
	return SyncState(s.state.Load())
}

// Resume re-enters the Polling state after an external rediscovery signal.
// A no-op unless suspended.
func (s *Synchronizer) Resume() {
	if s.state.CompareAndSwap(int32(StateSuspended), int32(StatePolling)) {
		select {
		case s.resume <- struct{}{}:
		default:
		}
	}
}

// Suspend halts polling without waiting for the next tick. Used by the
// update coordinator when a command fails and the device is demoted.
func (s *Synchronizer) Suspend() {
	s.toSuspended("suspended by coordinator", nil)
}

// Stop terminates the loop permanently. Used on device removal and process
// shutdown.
func (s *Synchronizer) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// run is the poll loop. While polling, a timer ticks at the fixed period;
// while suspended, the timer is torn down and the loop blocks until Resume.
func (s *Synchronizer) run() {
	for {
		if s.State() == StateSuspended {
			select {
			case <-s.stop:
				return
			case <-s.done:
				return
			case <-s.resume:
			}
			continue
		}

		ticker := time.NewTicker(s.period)
	polling:
		for {
			select {
			case <-s.stop:
				ticker.Stop()
				return
			case <-s.done:
				ticker.Stop()
				return
			case <-s.suspend:
				break polling
			case <-s.resume:
				// Already polling; drain a stale resume signal.
			case <-ticker.C:
				s.refresh(context.Background())
				if s.State() == StateSuspended {
					break polling
				}
			}
		}
		ticker.Stop()
	}
}

// refresh performs one poll cycle: serialize on the device key, wait out any
// in-flight command or discovery sweep so it never reads mid-write, fetch
// through the coalescer, diff, emit, replace the previous snapshot.
func (s *Synchronizer) refresh(ctx context.Context) {
	if !s.h.life.Running() {
		s.toSuspended("lifecycle not running", nil)
		return
	}

	s.state.Store(int32(StateRefreshing))

	// Wait for whichever of "in-flight operation complete" or "sweep
	// complete" fires first before touching the device.
	busy := s.h.anyInflight()
	sweeping, sweepCh := s.sweeps.SweepPending()
	if busy != nil || sweeping {
		select {
		case <-busy:
		case <-sweepCh:
		case <-s.stop:
			return
		case <-s.done:
			return
		}
	}

	err := s.ser.Run(ctx, s.h.Key(), func(ctx context.Context) error {
		if !s.h.life.Running() {
			return errHalted
		}

		// Hold the whole-device entry in the in-flight registry for the full
		// fetch-diff-replace cycle. Sub-device commands serialize under their
		// own keys, invisible to this closure's serializer key; the registry
		// claim is what keeps them from issuing a write while the fetch is
		// outstanding and having the fetched snapshot clobber it.
		for {
			conflict, claimed := s.h.claimOp(s.h.Key())
			if claimed {
				break
			}
			select {
			case <-conflict:
			case <-s.stop:
				return errHalted
			case <-s.done:
				return errHalted
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		defer s.h.endOp(s.h.Key())

		snap, err := s.fetch.Invoke(ctx)
		if err != nil {
			return err
		}

		// A response that arrived after the device was demoted is discarded,
		// not applied.
		if !s.h.life.Running() {
			return errHalted
		}

		changes := diffSnapshots(s.h.previous(), snap)
		s.h.replacePrevious(snap)
		for _, c := range changes {
			c.Source = SourcePoll
			s.events.publish(c)
		}
		return nil
	})

	switch {
	case err == nil:
		s.state.Store(int32(StatePolling))
	case errors.Is(err, errHalted):
		s.toSuspended("refresh halted", nil)
	default:
		s.h.life.MarkOffline()
		s.toSuspended("state fetch failed", err)
	}
}

// toSuspended enters the Suspended state and nudges the loop so the timer is
// torn down promptly.
func (s *Synchronizer) toSuspended(reason string, err error) {
	prev := SyncState(s.state.Swap(int32(StateSuspended)))
	if prev == StateSuspended {
		return
	}

	select {
	case s.suspend <- struct{}{}:
	default:
	}

	if err != nil {
		s.logger.Error("device polling suspended",
			"device", s.h.ID(), "reason", reason, "error", err)
	} else {
		s.logger.Debug("device polling suspended",
			"device", s.h.ID(), "reason", reason)
	}
}
