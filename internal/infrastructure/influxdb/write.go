package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePropertySample records one numeric device property reading.
//
// This is the primary method for property history. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Registry device id (e.g., "obs1:11111:focuser:0")
//   - deviceType: Device type tag (e.g., "focuser")
//   - property: The property name (e.g., "position", "ccdtemperature")
//   - value: The numeric value to record
//
// Example:
//
//	client.WritePropertySample("obs1:11111:focuser:0", "focuser", "position", 5000)
//	client.WritePropertySample("obs1:11111:camera:0", "camera", "ccdtemperature", -10.2)
func (c *Client) WritePropertySample(deviceID string, deviceType string, property string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_properties",
		map[string]string{
			"device_id":   deviceID,
			"device_type": deviceType,
			"property":    property,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionTransition records a connection state change.
//
// The state is stored as a field, not a tag, to keep series cardinality
// bounded by device count.
//
// Parameters:
//   - deviceID: Registry device id
//   - state: The state entered (e.g., "connected", "disconnected")
//   - failed: Whether the transition concluded a failed attempt
func (c *Client) WriteConnectionTransition(deviceID string, state string, failed bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connection_transitions",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"state":  state,
			"failed": failed,
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
//	client.WritePoint("hub_stats",
//	    map[string]string{"host": "hub-01"},
//	    map[string]interface{}{"devices_connected": 4, "scan_duration_ms": 2012})
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
