package server

import (
	"strings"
	"time"

	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/transport"
)

// Flags is the connection state bit set. Reachable combinations of the
// Idle/Sent pair are Idle, Sent, or neither; Idle|Sent never occurs.
// Allocated mirrors an owned pending response and is never stored.
type Flags uint8

const (
	FlagIdle Flags = 1 << iota
	FlagSent
	FlagAllocated
	FlagCallbackPending
	FlagClosing
)

func (f Flags) Has(bits Flags) bool {
	return f&bits == bits
}

func (f Flags) String() string {
	names := []struct {
		bit  Flags
		name string
	}{
		{FlagIdle, "idle"},
		{FlagSent, "sent"},
		{FlagAllocated, "allocated"},
		{FlagCallbackPending, "callback_pending"},
		{FlagClosing, "closing"},
	}
	var parts []string
	for _, n := range names {
		if f&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

type pendingReply uint8

const (
	replyNone pendingReply = iota
	replyPage
	replyPoll
)

// Connection is the per-client protocol state.
type Connection struct {
	ID          string
	Transport   string
	RemoteAddr  string
	AcceptedAt  time.Time
	CurrentPage protocol.PageID

	conn     transport.Conn
	flags    Flags
	response protocol.Response
	inbox    [][]byte
	pending  pendingReply

	closeRequested bool
	finalized      bool

	messages uint64
	rejects  uint64
}

func newConnection(c transport.Conn, initial protocol.PageID) *Connection {
	return &Connection{
		ID:          c.ID(),
		Transport:   c.Transport(),
		RemoteAddr:  c.RemoteAddr(),
		AcceptedAt:  time.Now(),
		CurrentPage: initial,
		conn:        c,
	}
}

// Flags returns the stored flags plus the derived Allocated bit.
func (c *Connection) Flags() Flags {
	f := c.flags
	if c.response.Owned() {
		f |= FlagAllocated
	}
	return f
}

func (c *Connection) Queued() int {
	return len(c.inbox)
}

func (c *Connection) hasResponse() bool {
	return !c.response.Empty()
}

func (c *Connection) attach(resp protocol.Response) {
	c.response = resp
}

func (c *Connection) popMessage() {
	c.inbox[0] = nil
	c.inbox = c.inbox[1:]
	if len(c.inbox) == 0 {
		c.inbox = nil
	}
}
