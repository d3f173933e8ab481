package transport

import (
	"errors"
	"net"
)

var (
	ErrWriteFailed = errors.New("transport: write failed")
	ErrReadFailed  = errors.New("transport: read failed")
	ErrClosed      = errors.New("transport: listener closed")
)

type EventKind uint8

const (
	EventAccept EventKind = iota
	EventReceive
	EventSendComplete
	EventPeerClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventAccept:
		return "accept"
	case EventReceive:
		return "receive"
	case EventSendComplete:
		return "send_complete"
	case EventPeerClose:
		return "peer_close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one transport occurrence for one connection. Data is owned by the
// receiver. N is the payload length of a completed send.
type Event struct {
	Kind EventKind
	Conn Conn
	Data []byte
	N    int
	Err  error
}

// Conn is the engine's handle on one client connection.
type Conn interface {
	ID() string
	RemoteAddr() string
	Transport() string
	// Send queues payload without blocking. It returns false while a previous
	// payload is still being written or after Close. The payload must stay
	// untouched until the matching SendComplete or Error event.
	Send(payload []byte) bool
	// Close shuts the connection down once the in-flight write (if any) has
	// finished.
	Close()
	// Abort closes immediately. No further events are reported.
	Abort()
}

// Listener delivers events for every connection it accepts.
type Listener interface {
	Events() <-chan Event
	Addr() net.Addr
	Close() error
}
