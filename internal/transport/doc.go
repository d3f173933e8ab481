// Package transport turns network listeners into a stream of panel events.
//
// Ownership boundary:
// - accept/read/write goroutines and socket lifetimes
// - inbound message splitting (via frame) and outbound framing
// - TLS policy and listener backoff
//
// Protocol state lives elsewhere; a transport only reports Accept, Receive,
// SendComplete, PeerClose and Error events and performs non-blocking sends.
package transport
