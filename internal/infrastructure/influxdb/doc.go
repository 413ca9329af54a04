// Package influxdb records bridge telemetry as time-series data.
//
// It wraps the official influxdb-client-go v2 library with the bridge's
// patterns for connection management, non-blocking batched writes, and
// health monitoring.
//
// The bridge writes receiver state transitions, volume changes, and
// connection lifecycle events so dashboards can chart listening habits
// and link dropouts over time.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteStateTransition("avr-1", "playing", 32.5, false)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are batched per config (batch_size, flush_interval) and errors
// surface asynchronously via SetOnError.
package influxdb
