// Package device persists receiver configurations and owns the live
// sessions built from them.
//
// The Store keeps device rows in SQLite; the Registry loads them on
// startup, builds one avr.Session per row through a TransportFactory,
// and fans session events out to its subscribers. Changing a device's
// configuration tears the old session down and builds a fresh one.
package device
