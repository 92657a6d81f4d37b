package kasa

import (
	"context"
	"fmt"
	"time"

	"github.com/MichaelCWarren/homebridge-kasa-python/internal/fleet"
)

// Adapter implements fleet.DeviceClient on top of the sidecar client.
type Adapter struct {
	client *Client
}

// NewAdapter wraps a sidecar client for use by the fleet.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

// FetchState retrieves a device's state and converts it to a snapshot.
func (a *Adapter) FetchState(ctx context.Context, host string) (*fleet.Snapshot, error) {
	info, err := a.client.GetSysInfo(ctx, host)
	if err != nil {
		return nil, err
	}
	return SnapshotFromSysInfo(info), nil
}

// Control applies one attribute change through the sidecar's feature/action
// vocabulary. childIndex below zero addresses the whole device.
func (a *Adapter) Control(ctx context.Context, host string, attr fleet.Attribute, value any, childIndex int) error {
	feature, action, wireValue, err := controlRequest(attr, value)
	if err != nil {
		return err
	}
	return a.client.ControlDevice(ctx, host, feature, action, wireValue, childIndex)
}

// controlRequest maps a mirror attribute write onto the sidecar vocabulary.
// The relay state selects between two actions; hue and saturation carry a
// keyed object so the sidecar can splice the component into the device's
// current HSV tuple; everything else is a setter carrying the value.
func controlRequest(attr fleet.Attribute, value any) (feature, action string, wireValue any, err error) {
	switch attr {
	case fleet.AttrState:
		on, ok := value.(bool)
		if !ok {
			return "", "", nil, fmt.Errorf("%w: state wants bool, got %T", ErrProtocol, value)
		}
		if on {
			return "state", "turn_on", nil, nil
		}
		return "state", "turn_off", nil, nil
	case fleet.AttrBrightness:
		return "brightness", "set_brightness", numericWireValue(value), nil
	case fleet.AttrColorTemp:
		return "color_temp", "set_color_temp", numericWireValue(value), nil
	case fleet.AttrHue:
		return "hue", "set_hsv", map[string]any{"hue": numericWireValue(value)}, nil
	case fleet.AttrSaturation:
		return "saturation", "set_hsv", map[string]any{"saturation": numericWireValue(value)}, nil
	case fleet.AttrFanSpeed:
		return "fan_speed_level", "set_fan_speed_level", numericWireValue(value), nil
	default:
		return "", "", nil, fmt.Errorf("%w: no control mapping for attribute %q", ErrProtocol, attr)
	}
}

// numericWireValue sends whole numbers as integers; the sidecar's setters
// take percentage and kelvin values as ints.
func numericWireValue(value any) any {
	switch n := fleet.NormalizeValue(value).(type) {
	case float64:
		return int(n)
	default:
		return value
	}
}

// SnapshotFromSysInfo converts a sidecar payload into the mirror's snapshot
// shape, deriving the in_use flag from the relay state at every level.
func SnapshotFromSysInfo(info *SysInfo) *fleet.Snapshot {
	snap := &fleet.Snapshot{
		DeviceID: info.DeviceID,
		Alias:    info.Alias,
		TakenAt:  time.Now().UTC(),
	}

	if len(info.Children) == 0 {
		snap.Values = make(map[fleet.Attribute]any)
		if info.State != nil {
			snap.Values[fleet.AttrState] = *info.State
			snap.Values[fleet.AttrInUse] = *info.State
		}
		putNumeric(snap.Values, fleet.AttrBrightness, info.Brightness)
		putNumeric(snap.Values, fleet.AttrColorTemp, info.ColorTemp)
		if info.HSV != nil {
			snap.Values[fleet.AttrHue] = info.HSV.Hue
			snap.Values[fleet.AttrSaturation] = info.HSV.Saturation
		}
		putNumeric(snap.Values, fleet.AttrFanSpeed, info.FanSpeedLevel)
		return snap
	}

	snap.Children = make(map[string]*fleet.SubDeviceState, len(info.Children))
	for i, child := range info.Children {
		values := map[fleet.Attribute]any{
			fleet.AttrState: child.State,
			fleet.AttrInUse: child.State,
		}
		putNumeric(values, fleet.AttrBrightness, child.Brightness)
		putNumeric(values, fleet.AttrColorTemp, child.ColorTemp)
		putNumeric(values, fleet.AttrFanSpeed, child.FanSpeedLevel)

		snap.Children[child.ID] = &fleet.SubDeviceState{
			ID:     child.ID,
			Alias:  child.Alias,
			Index:  i,
			Values: values,
		}
	}
	return snap
}

func putNumeric(values map[fleet.Attribute]any, attr fleet.Attribute, v *float64) {
	if v != nil {
		values[attr] = *v
	}
}

// CapabilitiesFromFeatureInfo derives the mirror's shape descriptor from the
// sidecar's feature flags.
func CapabilitiesFromFeatureInfo(info *SysInfo, features FeatureInfo) fleet.Capabilities {
	attrs := []fleet.Attribute{fleet.AttrState, fleet.AttrInUse}
	if features.Brightness {
		attrs = append(attrs, fleet.AttrBrightness)
	}
	if features.ColorTemp {
		attrs = append(attrs, fleet.AttrColorTemp)
	}
	if features.HSV {
		attrs = append(attrs, fleet.AttrHue, fleet.AttrSaturation)
	}
	if features.Fan {
		attrs = append(attrs, fleet.AttrFanSpeed)
	}

	return fleet.Capabilities{
		HasChildren: len(info.Children) > 0,
		Attributes:  attrs,
		Dependent: map[fleet.Attribute][]fleet.Attribute{
			fleet.AttrState: {fleet.AttrInUse},
		},
	}
}
