// Package mqtt wraps paho.mqtt.golang for the bridge's MQTT surface.
//
// The client tracks its subscriptions and restores them after a
// reconnect, publishes a Last Will so consumers see an unexpected
// bridge death, and recovers panics in message handlers.
//
// Topic layout:
//
//	avrbridge/{device}/state         retained entity attribute diffs
//	avrbridge/{device}/availability  retained online/offline per device
//	avrbridge/{device}/set           command intake
//	avrbridge/system/status          retained bridge status + LWT
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package mqtt
