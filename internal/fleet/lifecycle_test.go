package fleet

import "testing"

func TestLifecycleTransitions(t *testing.T) {
	l := NewLifecycle()

	if l.Phase() != PhaseOnline || !l.Running() {
		t.Fatalf("new lifecycle: phase=%s running=%v, want online/true", l.Phase(), l.Running())
	}

	if !l.MarkOffline() {
		t.Fatal("MarkOffline from online should report a change")
	}
	if l.Phase() != PhaseOffline || l.Running() {
		t.Fatalf("after MarkOffline: phase=%s running=%v", l.Phase(), l.Running())
	}
	if l.MarkOffline() {
		t.Fatal("MarkOffline from offline should be a no-op")
	}

	if !l.MarkOnline() {
		t.Fatal("MarkOnline from offline should report a change")
	}
	if l.MarkOnline() {
		t.Fatal("MarkOnline from online should be a no-op")
	}
}

func TestLifecycleShutdownIsTerminal(t *testing.T) {
	l := NewLifecycle()
	l.BeginShutdown()

	if l.Phase() != PhaseShuttingDown {
		t.Fatalf("phase = %s, want shutting_down", l.Phase())
	}
	if l.MarkOffline() {
		t.Fatal("a shutting-down lifecycle must not be demoted")
	}
	if l.MarkOnline() {
		t.Fatal("a shutting-down lifecycle must not be promoted")
	}
	if l.Running() {
		t.Fatal("shutting down must not report running")
	}
}
