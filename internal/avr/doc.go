// Package avr implements the control session for a network AV receiver.
//
// A Session owns the connection lifecycle for one device: the initial
// connect handshake, a self-limiting background reconnect loop, the
// websocket notification listener, and a power-off watchdog that tears
// idle connections down. Device commands never surface transport errors
// to callers; every public command returns a Status code, and commands
// issued while the device is unreachable are either buffered for replay
// after reconnect or retried once behind a bounded wait.
//
// State changes reach subscribers as Events. UPDATE events carry only the
// attributes that actually changed; a nil attribute map means the device
// was re-read end to end and subscribers should take a fresh snapshot.
package avr
