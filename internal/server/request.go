package server

import (
	"fmt"
	"sync/atomic"

	"github.com/danmuck/panelctl/internal/observability"
	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Request is the context of one update callback. It is valid only until the
// callback returns; afterwards every method that changes state fails with
// ErrNoActiveRequest.
type Request struct {
	server   *Server
	conn     *Connection
	page     protocol.PageID
	widgetID uint16
	done     atomic.Bool
}

// ChangePage switches the requesting connection to page id. The SET is then
// answered with the new page id instead of a poll.
func (r *Request) ChangePage(id protocol.PageID) error {
	if r == nil || r.done.Load() {
		return ErrNoActiveRequest
	}
	if int(id) >= r.server.registry.PageCount() {
		return fmt.Errorf("%w: %d", ErrPageOutOfRange, id)
	}
	from := r.conn.CurrentPage
	r.conn.CurrentPage = id
	observability.RecordPageChange()
	log.Debug().Str("conn", r.conn.ID).Uint16("from", uint16(from)).Uint16("to", uint16(id)).Msg("server.request page change")
	return nil
}

// Page is the page the SET was applied to.
func (r *Request) Page() protocol.PageID {
	return r.page
}

func (r *Request) WidgetID() uint16 {
	return r.widgetID
}

// Widgets returns the live widgets of the page the SET was applied to.
// Mutations are visible to the next poll.
func (r *Request) Widgets() []protocol.WidgetValue {
	if r == nil || r.done.Load() {
		return nil
	}
	return r.server.registry.Widgets(r.page)
}

func (r *Request) ConnectionID() string {
	return r.conn.ID
}

func (r *Request) finish() {
	r.done.Store(true)
}
