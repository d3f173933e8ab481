// Package protocol owns the panel wire contract: command decoding and
// response encoding.
//
// Ownership boundary:
// - widget values and their type tags
// - command decode/validation against a page view
// - init/page/poll response encoding and poll decoding
// - byte accounting for owned buffers (Budget)
package protocol
