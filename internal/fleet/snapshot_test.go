package fleet

import (
	"testing"
)

func plugCaps() Capabilities {
	return Capabilities{
		Attributes: []Attribute{AttrState, AttrInUse},
		Dependent:  map[Attribute][]Attribute{AttrState: {AttrInUse}},
	}
}

func stripCaps() Capabilities {
	return Capabilities{
		HasChildren: true,
		Attributes:  []Attribute{AttrState, AttrInUse},
		Dependent:   map[Attribute][]Attribute{AttrState: {AttrInUse}},
	}
}

func plugSnapshot(on bool) *Snapshot {
	return &Snapshot{
		DeviceID: "plug1",
		Alias:    "Lamp",
		Values: map[Attribute]any{
			AttrState: on,
			AttrInUse: on,
		},
	}
}

func TestDiffSnapshotsNoChanges(t *testing.T) {
	prev := plugSnapshot(true)
	next := plugSnapshot(true)

	if changes := diffSnapshots(prev, next); len(changes) != 0 {
		t.Fatalf("identical snapshots produced %d changes: %v", len(changes), changes)
	}
}

func TestDiffSnapshotsStateFlipEmitsStateThenInUse(t *testing.T) {
	prev := plugSnapshot(false)
	next := plugSnapshot(true)

	changes := diffSnapshots(prev, next)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %v", len(changes), changes)
	}
	if changes[0].Attribute != AttrState || changes[0].Value != true {
		t.Errorf("first change: got %+v, want state=true", changes[0])
	}
	if changes[1].Attribute != AttrInUse || changes[1].Value != true {
		t.Errorf("second change: got %+v, want in_use=true", changes[1])
	}
}

func TestDiffSnapshotsNilPreviousEmitsEverything(t *testing.T) {
	next := plugSnapshot(false)

	changes := diffSnapshots(nil, next)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes from nil baseline, got %d", len(changes))
	}
}

func TestDiffSnapshotsNumericNormalization(t *testing.T) {
	prev := &Snapshot{
		DeviceID: "bulb1",
		Values:   map[Attribute]any{AttrBrightness: 50}, // int, from a local write
	}
	next := &Snapshot{
		DeviceID: "bulb1",
		Values:   map[Attribute]any{AttrBrightness: float64(50)}, // from JSON
	}

	if changes := diffSnapshots(prev, next); len(changes) != 0 {
		t.Fatalf("int vs float64 of the same value produced changes: %v", changes)
	}
}

func TestDiffSnapshotsChildrenMatchedByStableID(t *testing.T) {
	prev := &Snapshot{
		DeviceID: "strip1",
		Children: map[string]*SubDeviceState{
			"sub-a": {ID: "sub-a", Index: 0, Values: map[Attribute]any{AttrState: true}},
			"sub-b": {ID: "sub-b", Index: 1, Values: map[Attribute]any{AttrState: false}},
		},
	}
	// Indexes swapped after rediscovery; only sub-b's state actually changed.
	next := &Snapshot{
		DeviceID: "strip1",
		Children: map[string]*SubDeviceState{
			"sub-a": {ID: "sub-a", Index: 1, Values: map[Attribute]any{AttrState: true}},
			"sub-b": {ID: "sub-b", Index: 0, Values: map[Attribute]any{AttrState: true}},
		},
	}

	changes := diffSnapshots(prev, next)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %v", len(changes), changes)
	}
	if changes[0].SubID != "sub-b" || changes[0].Attribute != AttrState || changes[0].Value != true {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	orig := &Snapshot{
		DeviceID: "strip1",
		Values:   map[Attribute]any{AttrState: true},
		Children: map[string]*SubDeviceState{
			"sub-a": {ID: "sub-a", Values: map[Attribute]any{AttrState: true}},
		},
	}

	cpy := orig.Clone()
	cpy.Values[AttrState] = false
	cpy.Children["sub-a"].Values[AttrState] = false

	if orig.Values[AttrState] != true {
		t.Error("mutating the clone's values leaked into the original")
	}
	if orig.Children["sub-a"].Values[AttrState] != true {
		t.Error("mutating the clone's child values leaked into the original")
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 42, float64(42)},
		{"int64", int64(7), float64(7)},
		{"float32", float32(1.5), float64(1.5)},
		{"float64 passthrough", float64(3), float64(3)},
		{"bool passthrough", true, true},
		{"string passthrough", "warm", "warm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeValue(tt.in); got != tt.want {
				t.Errorf("NormalizeValue(%v) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCapabilitiesDeriveDependent(t *testing.T) {
	caps := plugCaps()

	derived := caps.DeriveDependent(AttrState, true)
	if v, ok := derived[AttrInUse]; !ok || v != true {
		t.Fatalf("state=true should derive in_use=true, got %v", derived)
	}

	derived = caps.DeriveDependent(AttrState, false)
	if v := derived[AttrInUse]; v != false {
		t.Fatalf("state=false should derive in_use=false, got %v", derived)
	}

	if d := caps.DeriveDependent(AttrBrightness, 50); d != nil {
		t.Fatalf("brightness has no dependents, got %v", d)
	}
}

func TestSafeDefault(t *testing.T) {
	if v := SafeDefault(AttrState); v != false {
		t.Errorf("state default = %v, want false", v)
	}
	if v := SafeDefault(AttrBrightness); v != float64(0) {
		t.Errorf("brightness default = %v, want 0", v)
	}
	if v := SafeDefault(Attribute("bogus")); v != nil {
		t.Errorf("unknown attribute default = %v, want nil", v)
	}
}
