// Package api provides the HTTP REST API and WebSocket server for the
// bridge.
//
// It exposes the device registry, a command endpoint per device, and a
// WebSocket stream of entity attribute diffs for host integrations.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
