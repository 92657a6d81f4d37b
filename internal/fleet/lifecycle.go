package fleet

import "sync"

// Phase is the lifecycle state of one device. ShuttingDown is process-wide
// and supersedes the per-device states.
type Phase string

// Lifecycle phases.
const (
	// PhaseOnline: the device answers and polling is active.
	PhaseOnline Phase = "online"

	// PhaseOffline: a remote call failed or the device was removed. Polling
	// is halted; recovery requires an external rediscovery signal.
	PhaseOffline Phase = "offline"

	// PhaseShuttingDown: the process is stopping. Terminal.
	PhaseShuttingDown Phase = "shutting_down"
)

// Lifecycle is the online/offline/shutting-down state machine for one
// device. Transitions:
//
//	Online → Offline        on any remote I/O failure or explicit removal
//	Offline → Online        only via an external rediscovery signal
//	any → ShuttingDown      immediately, no retry, terminal
type Lifecycle struct {
	mu    sync.RWMutex
	phase Phase
}

// NewLifecycle returns a lifecycle in the Online phase.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{phase: PhaseOnline}
}

// Phase returns the current phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.phase
}

// Running reports whether the device is online and the process is not
// shutting down.
func (l *Lifecycle) Running() bool {
	return l.Phase() == PhaseOnline
}

// MarkOffline demotes the device. Returns true if the phase changed.
// A shutting-down lifecycle is never demoted.
func (l *Lifecycle) MarkOffline() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseOnline {
		return false
	}
	l.phase = PhaseOffline
	return true
}

// MarkOnline promotes an offline device after rediscovery. Returns true if
// the phase changed.
func (l *Lifecycle) MarkOnline() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase != PhaseOffline {
		return false
	}
	l.phase = PhaseOnline
	return true
}

// BeginShutdown moves to the terminal ShuttingDown phase.
func (l *Lifecycle) BeginShutdown() {
	l.mu.Lock()
	l.phase = PhaseShuttingDown
	l.mu.Unlock()
}
