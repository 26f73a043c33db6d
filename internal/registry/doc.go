// Package registry implements the Subscription Registry component.
//
// The Subscription Registry:
//   - Maps subscription keys (an entity name or the wildcard) to handlers
//   - Fans each data_update frame out to the entity's handlers and to every
//     wildcard handler
//   - Isolates handlers from each other: a panicking handler is logged and
//     the remaining handlers still run
//   - Never replays: a handler only sees frames dispatched after it subscribed
package registry
