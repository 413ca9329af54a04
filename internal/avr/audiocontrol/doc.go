// Package audiocontrol implements the avr.Transport interface for
// receivers speaking the Audio Control API: JSON-RPC over HTTP with one
// endpoint per service, plus websocket channels that push volume, content
// and power notifications.
//
// The client is deliberately shallow about protocol edge cases; the
// session layer owns retries, buffering and availability. Every failure
// is reported as *avr.TransportError so the session can tell device
// trouble from caller mistakes.
package audiocontrol
