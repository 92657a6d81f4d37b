package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAttributeChange records one attribute-change observation.
//
// This is the primary method for recording mirrored device telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Stable device identifier
//   - subID: Child outlet identifier (empty for whole-device attributes)
//   - attribute: Attribute name (e.g., "state", "brightness")
//   - source: What produced the change ("poll" or "command")
//   - value: The numeric value (booleans encoded as 0/1 by the caller)
//   - timestamp: When the change was observed
//
// Example:
//
//	client.WriteAttributeChange("8006ABCD", "", "brightness", "poll", 75, time.Now())
func (c *Client) WriteAttributeChange(deviceID, subID, attribute, source string, value float64, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"device_id": deviceID,
		"attribute": attribute,
		"source":    source,
	}
	if subID != "" {
		tags["sub_id"] = subID
	}

	point := write.NewPoint(
		"attribute_state",
		tags,
		map[string]interface{}{
			"value": value,
		},
		timestamp,
	)

	c.writeAPI.WritePoint(point)
}

// WriteAvailability records a device going online or offline.
//
// Parameters:
//   - deviceID: Stable device identifier
//   - online: Current reachability
func (c *Client) WriteAvailability(deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	value := 0.0
	if online {
		value = 1.0
	}

	point := write.NewPoint(
		"availability",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("sweep_stats",
//	    map[string]string{"result": "ok"},
//	    map[string]interface{}{"devices_found": 12})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
