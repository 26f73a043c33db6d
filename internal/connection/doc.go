// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Maintains one shared WebSocket connection to the backend push endpoint
//   - Derives the endpoint from the REST base URL (https → wss, http → ws)
//   - Sends a JSON ping every heartbeat interval while the connection is open
//   - Reconnects after a fixed delay, up to a fixed number of attempts
//   - Decodes inbound frames and hands data updates to a Dispatcher
//
// Connect is idempotent: while a connection is open or being established,
// further calls are no-ops. Nothing in this package returns transport or
// decode failures to callers; they are logged and recovery is driven by the
// close path.
package connection
