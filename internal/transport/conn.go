package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/danmuck/panelctl/internal/protocol/frame"
	"github.com/google/uuid"
)

// hub is the listener-side state shared by both transports: the event
// channel, tracked connections and goroutine accounting.
type hub struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	wg     sync.WaitGroup

	mu        sync.Mutex
	conns     map[*streamConn]struct{}
	closed    bool
	closeOnce sync.Once
}

func newHub(parent context.Context, buffer int) *hub {
	ctx, cancel := context.WithCancel(parent)
	return &hub{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, buffer),
		conns:  make(map[*streamConn]struct{}),
	}
}

func (h *hub) Events() <-chan Event {
	return h.events
}

func (h *hub) emit(ev Event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// enter registers one goroutine that may emit events. It fails once the hub
// is shutting down.
func (h *hub) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// track registers c and accounts for its writer goroutine.
func (h *hub) track(c *streamConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *hub) untrack(c *streamConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}

func (h *hub) active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// shutdown stops every goroutine and closes the event channel.
func (h *hub) shutdown(closeListener func()) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		conns := make([]*streamConn, 0, len(h.conns))
		for c := range h.conns {
			conns = append(conns, c)
		}
		h.mu.Unlock()

		h.cancel()
		closeListener()
		for _, c := range conns {
			c.Abort()
		}
		h.wg.Wait()
		close(h.events)
	})
}

// streamConn implements Conn on top of a write function and a single-slot send
// queue served by one writer goroutine.
type streamConn struct {
	id     string
	kind   string
	remote string
	hub    *hub

	sendCh   chan []byte
	busy     atomic.Bool
	closing  chan struct{}
	closeMu  sync.Once
	shutOnce sync.Once
	closed   atomic.Bool
	aborted  atomic.Bool

	write    func(payload []byte) error
	shutdown func(graceful bool)
}

func newStreamConn(h *hub, kind, remote string) *streamConn {
	return &streamConn{
		id:      uuid.NewString(),
		kind:    kind,
		remote:  remote,
		hub:     h,
		sendCh:  make(chan []byte, 1),
		closing: make(chan struct{}),
	}
}

func (c *streamConn) ID() string         { return c.id }
func (c *streamConn) RemoteAddr() string { return c.remote }
func (c *streamConn) Transport() string  { return c.kind }

func (c *streamConn) Send(payload []byte) bool {
	if c.closed.Load() {
		return false
	}
	if !c.busy.CompareAndSwap(false, true) {
		return false
	}
	c.sendCh <- payload
	return true
}

func (c *streamConn) Close() {
	c.closed.Store(true)
	c.closeMu.Do(func() { close(c.closing) })
}

func (c *streamConn) Abort() {
	c.aborted.Store(true)
	c.Close()
	c.finish(false)
}

func (c *streamConn) finish(graceful bool) {
	c.closed.Store(true)
	c.shutOnce.Do(func() { c.shutdown(graceful) })
}

func (c *streamConn) report(ev Event) bool {
	if c.aborted.Load() {
		return false
	}
	ev.Conn = c
	return c.hub.emit(ev)
}

func (c *streamConn) writeLoop() {
	defer c.hub.wg.Done()
	defer c.hub.untrack(c)
	for {
		select {
		case p := <-c.sendCh:
			if !c.flush(p) {
				return
			}
		case <-c.closing:
			select {
			case p := <-c.sendCh:
				if !c.flush(p) {
					return
				}
			default:
			}
			c.finish(true)
			return
		case <-c.hub.ctx.Done():
			c.finish(false)
			return
		}
	}
}

func (c *streamConn) flush(p []byte) bool {
	err := c.write(p)
	c.busy.Store(false)
	if err != nil {
		c.finish(false)
		c.report(Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrWriteFailed, err)})
		return false
	}
	c.report(Event{Kind: EventSendComplete, N: len(p)})
	return true
}

// readDone reports how the read side ended. A clean end of stream (or a
// truncated trailing message) is a peer close; anything else is an error.
// Nothing is reported once the connection was closed locally.
func (c *streamConn) readDone(err error) {
	if c.closed.Load() {
		return
	}
	if err == nil || errors.Is(err, frame.ErrIncomplete) {
		c.report(Event{Kind: EventPeerClose})
		return
	}
	c.report(Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrReadFailed, err)})
}
