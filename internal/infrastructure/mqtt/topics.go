package mqtt

import "fmt"

// Topic prefixes for the Kasa bridge MQTT surface.
//
// Device topics use the flat scheme: kasa/{category}/{device_id}[/{sub_id}]/{attribute}
// Sub-device segments appear only for devices with children (power strips).
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "kasa"

	// TopicPrefixBridge is the base for bridge process topics (status, discovery).
	TopicPrefixBridge = "kasa/bridge"
)

// Topics provides builders for Kasa bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("8006ABCD", "brightness")
//	// Returns: "kasa/state/8006ABCD/brightness"
type Topics struct{}

// =============================================================================
// Device Topics
// =============================================================================

// DeviceState returns the retained state topic for one device attribute.
//
// Example: kasa/state/8006ABCD/state
func (Topics) DeviceState(deviceID, attribute string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, deviceID, attribute)
}

// SubDeviceState returns the retained state topic for a child outlet attribute.
//
// Example: kasa/state/8006ABCD/plug-1/state
func (Topics) SubDeviceState(deviceID, subID, attribute string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicPrefix, deviceID, subID, attribute)
}

// DeviceSet returns the command topic for one device attribute.
//
// Example: kasa/set/8006ABCD/brightness
func (Topics) DeviceSet(deviceID, attribute string) string {
	return fmt.Sprintf("%s/set/%s/%s", TopicPrefix, deviceID, attribute)
}

// SubDeviceSet returns the command topic for a child outlet attribute.
//
// Example: kasa/set/8006ABCD/plug-1/state
func (Topics) SubDeviceSet(deviceID, subID, attribute string) string {
	return fmt.Sprintf("%s/set/%s/%s/%s", TopicPrefix, deviceID, subID, attribute)
}

// DeviceAvailability returns the retained availability topic for a device.
// Payload is "online" or "offline".
//
// Example: kasa/availability/8006ABCD
func (Topics) DeviceAvailability(deviceID string) string {
	return fmt.Sprintf("%s/availability/%s", TopicPrefix, deviceID)
}

// =============================================================================
// Bridge Topics
// =============================================================================

// BridgeStatus returns the bridge process status topic.
// Used for the LWT and graceful online/offline announcements.
//
// Example: kasa/bridge/status
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixBridge)
}

// BridgeDiscovery returns the topic for discovery sweep announcements.
//
// Example: kasa/bridge/discovery
func (Topics) BridgeDiscovery() string {
	return fmt.Sprintf("%s/discovery", TopicPrefixBridge)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllSetCommands returns a pattern matching every command topic.
// Matches both device and sub-device depth.
//
// Pattern: kasa/set/#
func (Topics) AllSetCommands() string {
	return fmt.Sprintf("%s/set/#", TopicPrefix)
}

// AllDeviceStates returns a pattern matching every state topic.
//
// Pattern: kasa/state/#
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/state/#", TopicPrefix)
}

// AllAvailability returns a pattern matching every availability topic.
//
// Pattern: kasa/availability/+
func (Topics) AllAvailability() string {
	return fmt.Sprintf("%s/availability/+", TopicPrefix)
}

// AllTopics returns a pattern matching all bridge topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: kasa/#
func (Topics) AllTopics() string {
	return "kasa/#"
}
