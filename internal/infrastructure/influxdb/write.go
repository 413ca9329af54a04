package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteStateTransition records a receiver state change.
//
// The write is non-blocking; data is batched and sent asynchronously.
// Calls on a disconnected client are silently dropped.
//
// Example:
//
//	client.WriteStateTransition("avr-1", "playing", 32.5, false)
func (c *Client) WriteStateTransition(deviceID string, state string, volume float64, muted bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"avr_state",
		map[string]string{
			"device_id": deviceID,
			"state":     state,
		},
		map[string]interface{}{
			"volume": volume,
			"muted":  muted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteVolumeChange records a volume level measurement.
func (c *Client) WriteVolumeChange(deviceID string, volume float64, muted bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"avr_volume",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"volume": volume,
			"muted":  muted,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionEvent records a connection lifecycle event so link
// dropouts can be charted over time.
//
// Parameters:
//   - deviceID: Device identifier
//   - event: One of "connected", "disconnected", "reconnect_failed"
func (c *Client) WriteConnectionEvent(deviceID string, event string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"avr_connection",
		map[string]string{
			"device_id": deviceID,
			"event":     event,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods. Tags are
// indexed and should stay low-cardinality; fields hold the data.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
// Use when the timestamp is not "now", such as replayed data.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
