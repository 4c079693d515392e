// Package session groups connections into sessions and relays
// connection lifecycle events to a designated owner.
//
// A Manager tracks a mutable set of session identifiers on behalf of
// one owner connection. The Registry holds all managers and subscribes
// once to the hub's lifecycle signals; every event fans out to every
// manager, which forwards a scoped event to its owner when the session
// is tracked and an unconditional activity summary either way. A
// manager tears itself down when its owner disconnects, when its
// lifetime elapses, or on explicit delete — all three paths converge on
// the same idempotent close.
//
// The Store interface is the narrow persistence surface the layer
// consumes: session records with a tab counter. MemoryStore backs tests
// and single-process deployments; the redis package provides the shared
// counterpart.
package session
