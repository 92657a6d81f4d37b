package fleet

import (
	"sort"
	"time"
)

// Attribute identifies one reported or controlled device property.
type Attribute string

// Attributes reported by Kasa smart-power devices.
const (
	// AttrState is the relay/power state (bool).
	AttrState Attribute = "state"

	// AttrInUse is derived from AttrState: an outlet that is switched on is
	// considered in use. It is never controlled directly.
	AttrInUse Attribute = "in_use"

	// AttrBrightness is the dimmer level, 0-100 (number).
	AttrBrightness Attribute = "brightness"

	// AttrColorTemp is the colour temperature in kelvin (number).
	AttrColorTemp Attribute = "color_temp"

	// AttrHue is the colour hue in degrees, 0-360 (number).
	AttrHue Attribute = "hue"

	// AttrSaturation is the colour saturation, 0-100 (number).
	AttrSaturation Attribute = "saturation"

	// AttrFanSpeed is the fan speed level, 0-100 (number).
	AttrFanSpeed Attribute = "fan_speed_level"
)

// attributeOrder fixes the emission order of change notifications so a
// controlled attribute always precedes the attributes derived from it.
var attributeOrder = []Attribute{
	AttrState,
	AttrInUse,
	AttrBrightness,
	AttrColorTemp,
	AttrHue,
	AttrSaturation,
	AttrFanSpeed,
}

// safeDefaults are returned for reads while a device is offline or the
// process is shutting down. Reads never block and never fail.
var safeDefaults = map[Attribute]any{
	AttrState:      false,
	AttrInUse:      false,
	AttrBrightness: float64(0),
	AttrColorTemp:  float64(0),
	AttrHue:        float64(0),
	AttrSaturation: float64(0),
	AttrFanSpeed:   float64(0),
}

// SafeDefault returns the value reported for attr when no live value is
// available. Unknown attributes default to nil.
func SafeDefault(attr Attribute) any {
	return safeDefaults[attr]
}

// NormalizeValue canonicalises an attribute value so values originating from
// JSON decoding (float64), typed API structs (int) and local optimistic
// writes compare equal. Booleans pass through; every numeric type becomes
// float64.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// Capabilities describes one device shape: which attributes it reports,
// whether it exposes independently controllable sub-devices, and which
// attributes are derived from others. One generic synchronizer parameterized
// by this descriptor replaces per-shape special cases.
type Capabilities struct {
	// HasChildren is true for power strips and multi-channel switches.
	HasChildren bool

	// Attributes is the full attribute set this shape reports, derived
	// attributes included.
	Attributes []Attribute

	// Dependent maps a controlled attribute to the attributes recomputed
	// whenever it changes (state drives in_use).
	Dependent map[Attribute][]Attribute
}

// Has reports whether the shape carries attr.
func (c Capabilities) Has(attr Attribute) bool {
	for _, a := range c.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

// DeriveDependent returns the recomputed values of the attributes dependent
// on attr, given its new value. For AttrState the derived in_use flag simply
// follows the relay state.
func (c Capabilities) DeriveDependent(attr Attribute, value any) map[Attribute]any {
	deps := c.Dependent[attr]
	if len(deps) == 0 {
		return nil
	}

	derived := make(map[Attribute]any, len(deps))
	for _, dep := range deps {
		if dep == AttrInUse {
			on, _ := value.(bool)
			derived[AttrInUse] = on
		}
	}
	return derived
}

// SubDeviceState is the snapshot entry for one independently controllable
// channel of a multi-channel device. Entries are keyed by a stable
// sub-device ID assigned by the device itself, never by list position.
type SubDeviceState struct {
	// ID is the stable sub-device identifier, unique within the device.
	ID string

	// Alias is the user-visible channel name.
	Alias string

	// Index is the channel's position in the device's child list, required
	// by the remote control API. It may change between discoveries; ID does
	// not.
	Index int

	// Values holds the channel's attribute values, normalized.
	Values map[Attribute]any
}

// clone returns an independent copy.
func (s *SubDeviceState) clone() *SubDeviceState {
	cpy := *s
	cpy.Values = cloneValues(s.Values)
	return &cpy
}

// Snapshot is a point-in-time record of a device's reported attributes. A
// snapshot is owned by the synchronizer until superseded; the previous
// snapshot always reflects the last fully applied one at the moment any diff
// is computed.
type Snapshot struct {
	// DeviceID is the stable device identifier.
	DeviceID string

	// Alias is the user-visible device name.
	Alias string

	// TakenAt records when the snapshot was fetched or applied.
	TakenAt time.Time

	// Values holds top-level attribute values for single-channel devices.
	Values map[Attribute]any

	// Children holds per-channel state for multi-channel devices, keyed by
	// stable sub-device ID.
	Children map[string]*SubDeviceState
}

// Clone returns an independent deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}

	cpy := *s
	cpy.Values = cloneValues(s.Values)
	if s.Children != nil {
		cpy.Children = make(map[string]*SubDeviceState, len(s.Children))
		for id, child := range s.Children {
			cpy.Children[id] = child.clone()
		}
	}
	return &cpy
}

func cloneValues(values map[Attribute]any) map[Attribute]any {
	if values == nil {
		return nil
	}
	cpy := make(map[Attribute]any, len(values))
	for k, v := range values {
		cpy[k] = v
	}
	return cpy
}

// Change sources.
const (
	// SourcePoll marks changes observed by the background refresh loop.
	SourcePoll = "poll"

	// SourceCommand marks changes applied optimistically after a control
	// command succeeded.
	SourceCommand = "command"
)

// Change is one attribute-change notification. SubID is empty for top-level
// attributes of single-channel devices.
type Change struct {
	DeviceID  string
	SubID     string
	Attribute Attribute
	Value     any
	Source    string
}

// diffSnapshots computes the attribute-level changes between the last
// applied snapshot and a fresh one. Top-level attributes are compared
// one by one in attributeOrder; sub-devices are compared independently by
// stable ID, never by index. Re-applying an unchanged snapshot produces no
// changes.
func diffSnapshots(prev, next *Snapshot) []Change {
	if next == nil {
		return nil
	}

	var changes []Change
	changes = appendValueDiffs(changes, next.DeviceID, "", prevValues(prev), next.Values)

	if len(next.Children) == 0 {
		return changes
	}

	ids := make([]string, 0, len(next.Children))
	for id := range next.Children {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var before map[Attribute]any
		if prev != nil {
			if child, ok := prev.Children[id]; ok {
				before = child.Values
			}
		}
		changes = appendValueDiffs(changes, next.DeviceID, id, before, next.Children[id].Values)
	}

	return changes
}

func prevValues(prev *Snapshot) map[Attribute]any {
	if prev == nil {
		return nil
	}
	return prev.Values
}

func appendValueDiffs(changes []Change, deviceID, subID string, before, after map[Attribute]any) []Change {
	for _, attr := range attributeOrder {
		next, ok := after[attr]
		if !ok {
			continue
		}
		next = NormalizeValue(next)
		if old, had := before[attr]; had && valuesEqual(NormalizeValue(old), next) {
			continue
		}
		changes = append(changes, Change{
			DeviceID:  deviceID,
			SubID:     subID,
			Attribute: attr,
			Value:     next,
		})
	}
	return changes
}

// valuesEqual compares two normalized attribute values.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}
