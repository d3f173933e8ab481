// Package server is the panel protocol engine: page registry, per-connection
// state machine and the single event loop that drives them.
//
// Ownership boundary:
// - all protocol and connection state, touched only from the loop goroutine
// - owned responses, reserved from the memory budget and released exactly once
// - the request context handed to page update callbacks
//
// Transports feed events in; the server never blocks on network I/O.
package server
