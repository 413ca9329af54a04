// Package entity adapts device sessions into media-player entities for
// the host surfaces.
//
// An entity caches the last attribute set it pushed out and filters
// every update down to the keys that actually changed, so websocket and
// MQTT consumers only see real transitions. The Manager maps device IDs
// to their entities.
package entity
