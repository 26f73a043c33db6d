// Package model defines the wire frames exchanged with the push endpoint and
// the subscription keys used to route them.
//
// Frame kinds:
//   - ping: outbound keep-alive, sent by the client on a fixed interval
//   - pong: inbound keep-alive acknowledgment, never dispatched
//   - data_update: inbound change notification, dispatched by entity
//
// A Key is either a specific entity ("project", "invoice") or All, which
// matches every data_update regardless of its entity.
package model
