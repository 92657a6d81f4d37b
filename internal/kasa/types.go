package kasa

// SysInfo is a device's reported state and identity as serialized by the
// sidecar. Single-channel devices carry their attributes at the top level;
// multi-channel devices carry them per child.
type SysInfo struct {
	Alias      string      `json:"alias"`
	DeviceID   string      `json:"device_id"`
	DeviceType string      `json:"device_type"`
	Host       string      `json:"host"`
	MAC        string      `json:"mac"`
	Model      string      `json:"model"`
	HWVersion  string      `json:"hw_ver"`
	SWVersion  string      `json:"sw_ver"`
	ChildNum   int         `json:"child_num"`
	Children   []ChildInfo `json:"children,omitempty"`

	State         *bool    `json:"state,omitempty"`
	Brightness    *float64 `json:"brightness,omitempty"`
	ColorTemp     *float64 `json:"color_temp,omitempty"`
	HSV           *HSVInfo `json:"hsv,omitempty"`
	FanSpeedLevel *float64 `json:"fan_speed_level,omitempty"`
}

// HSVInfo is the colour state of an HSV-capable light. The sidecar reports
// hue and saturation only; brightness rides as its own attribute.
type HSVInfo struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
}

// ChildInfo is one channel of a power strip or multi-gang switch. ID is
// stable across discoveries; list position is not.
type ChildInfo struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
	State bool   `json:"state"`

	Brightness    *float64 `json:"brightness,omitempty"`
	ColorTemp     *float64 `json:"color_temp,omitempty"`
	FanSpeedLevel *float64 `json:"fan_speed_level,omitempty"`
}

// FeatureInfo flags the optional feature modules a device exposes.
type FeatureInfo struct {
	Brightness bool `json:"brightness"`
	ColorTemp  bool `json:"color_temp"`
	HSV        bool `json:"hsv"`
	Fan        bool `json:"fan"`
}

// DeviceInfo is the discovery payload for one device.
type DeviceInfo struct {
	SysInfo     SysInfo     `json:"sys_info"`
	FeatureInfo FeatureInfo `json:"feature_info"`
}

// DiscoveryRequest configures one discovery sweep.
type DiscoveryRequest struct {
	// AdditionalBroadcasts lists extra broadcast addresses beyond the
	// default 255.255.255.255.
	AdditionalBroadcasts []string `json:"additionalBroadcasts"`

	// ManualDevices lists hosts probed directly, for devices on subnets
	// broadcast cannot reach.
	ManualDevices []string `json:"manualDevices"`
}
