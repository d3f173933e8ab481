package server

import (
	"errors"
	"fmt"

	"github.com/danmuck/panelctl/internal/observability"
	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/transport"
)

// Handle applies one transport event. It must run on the loop goroutine.
func (s *Server) Handle(ev transport.Event) {
	if ev.Conn == nil {
		return
	}
	if ev.Kind == transport.EventAccept {
		s.accept(ev.Conn)
		return
	}
	c, ok := s.conns[ev.Conn.ID()]
	if !ok {
		s.logger.Debug().Str("conn", ev.Conn.ID()).Str("event", ev.Kind.String()).Msg("server.event unknown connection")
		return
	}
	switch ev.Kind {
	case transport.EventReceive:
		s.receive(c, ev.Data)
	case transport.EventSendComplete:
		s.sendComplete(c, ev.N)
	case transport.EventPeerClose:
		s.peerClose(c)
	case transport.EventError:
		s.logger.Warn().Err(ev.Err).Str("conn", c.ID).Str("flags", c.Flags().String()).Msg("server.event transport error")
		s.finalize(c)
	}
}

// Tick retries deferred work on every connection.
func (s *Server) Tick() {
	for _, c := range s.conns {
		s.retry(c)
	}
	observability.SetBudgetInUse(s.budget.InUse())
}

func (s *Server) retry(c *Connection) {
	if c.finalized {
		return
	}
	if c.flags.Has(FlagCallbackPending) {
		s.buildPending(c)
	}
	switch {
	case c.hasResponse() && !c.flags.Has(FlagSent):
		s.startSend(c)
	case c.flags.Has(FlagIdle) && !c.flags.Has(FlagClosing) && len(c.inbox) > 0:
		s.process(c)
	}
	if c.flags.Has(FlagClosing) && !c.finalized && (c.flags.Has(FlagIdle) || c.flags.Has(FlagSent)) {
		s.close(c)
	}
}

func (s *Server) accept(tc transport.Conn) {
	resp, err := protocol.EncodeInit(s.budget, s.registry.Initial())
	if err != nil {
		s.logger.Warn().Err(err).Str("conn", tc.ID()).Str("remote", tc.RemoteAddr()).Msg("server.accept refused")
		observability.RecordDeferred("init_budget")
		tc.Abort()
		return
	}
	c := newConnection(tc, s.registry.Initial())
	s.conns[c.ID] = c
	observability.ConnectionOpened(c.Transport)
	c.attach(resp)
	s.logger.Info().Str("conn", c.ID).Str("transport", c.Transport).Str("remote", c.RemoteAddr).
		Uint16("page", uint16(c.CurrentPage)).Msg("server.accept")
	s.startSend(c)
}

func (s *Server) receive(c *Connection, data []byte) {
	if c.flags.Has(FlagClosing) || c.closeRequested {
		return
	}
	if len(c.inbox) >= s.cfg.MaxInboundQueue {
		s.logger.Warn().Str("conn", c.ID).Int("queued", len(c.inbox)).Msg("server.receive queue overflow")
		s.finalize(c)
		return
	}
	c.inbox = append(c.inbox, data)
	if c.flags.Has(FlagIdle) {
		s.process(c)
	}
}

// process decodes the oldest queued message. A connection handles one
// message at a time: Idle is cleared here and restored once the reply has
// been fully sent.
func (s *Server) process(c *Connection) {
	if !c.flags.Has(FlagIdle) || c.flags.Has(FlagClosing) || len(c.inbox) == 0 {
		return
	}
	c.flags &^= FlagIdle

	x := protocol.Exchange{CurrentPage: c.CurrentPage}
	kind := s.decoder.Decode(c.inbox[0], &x)
	if kind == protocol.MessageOutOfTokenMemory {
		c.flags |= FlagIdle
		observability.RecordDeferred("token_memory")
		s.logger.Debug().Str("conn", c.ID).Int("bytes", len(c.inbox[0])).Msg("server.process deferred for token memory")
		return
	}
	c.popMessage()
	c.messages++
	observability.RecordMessage(kind.String())

	switch kind {
	case protocol.MessageInvalid:
		c.rejects++
		observability.RecordReject(x.Reject.Reason)
		s.logger.Debug().Str("conn", c.ID).Str("reason", x.Reject.Reason).Msg("server.process rejected")
		c.attach(x.Response)
	case protocol.MessageGet:
		p, _ := s.registry.Page(x.RequestedPage)
		c.attach(protocol.Borrowed(p.Description))
	case protocol.MessagePoll:
		c.pending = replyPoll
		s.buildPending(c)
	case protocol.MessageSet:
		page := c.CurrentPage
		s.runUpdate(c, page, x.WidgetID, x.Previous)
		if c.CurrentPage != page {
			c.pending = replyPage
		} else {
			c.pending = replyPoll
		}
		s.buildPending(c)
	}
	s.startSend(c)
}

func (s *Server) runUpdate(c *Connection, page protocol.PageID, widgetID uint16, previous protocol.WidgetValue) {
	p, ok := s.registry.Page(page)
	if !ok || p.Update == nil {
		return
	}
	req := &Request{server: s, conn: c, page: page, widgetID: widgetID}
	s.request.Store(req)
	defer func() {
		req.finish()
		s.request.Store(nil)
		if r := recover(); r != nil {
			s.logger.Error().Str("conn", c.ID).Uint16("page", uint16(page)).Uint16("widget", widgetID).
				Str("panic", fmt.Sprint(r)).Msg("server.update callback panicked")
		}
	}()
	p.Update(req, widgetID, previous)
}

// buildPending encodes the reply owed after a POLL or SET. A budget failure
// leaves CallbackPending set for the next tick.
func (s *Server) buildPending(c *Connection) {
	var (
		resp protocol.Response
		err  error
	)
	switch c.pending {
	case replyPage:
		resp, err = protocol.EncodePage(s.budget, c.CurrentPage)
	case replyPoll:
		resp, err = protocol.EncodePoll(s.budget, s.registry.Widgets(c.CurrentPage))
	default:
		c.flags &^= FlagCallbackPending
		return
	}
	switch {
	case errors.Is(err, protocol.ErrPollTooLarge):
		s.logger.Warn().Err(err).Str("conn", c.ID).Uint16("page", uint16(c.CurrentPage)).Msg("server.poll too large")
		observability.RecordReject(protocol.RejectPollTooLarge.Reason)
		c.pending = replyNone
		c.flags &^= FlagCallbackPending
		c.attach(protocol.Borrowed(protocol.RejectPollTooLarge.Body()))
	case err != nil:
		if !c.flags.Has(FlagCallbackPending) {
			observability.RecordDeferred("response_budget")
			s.logger.Debug().Str("conn", c.ID).Msg("server.reply deferred for budget")
		}
		c.flags |= FlagCallbackPending
	default:
		c.pending = replyNone
		c.flags &^= FlagCallbackPending
		c.attach(resp)
	}
}

func (s *Server) startSend(c *Connection) {
	if c.finalized || !c.hasResponse() || c.flags.Has(FlagSent) {
		return
	}
	if !c.conn.Send(c.response.Bytes()) {
		s.logger.Debug().Str("conn", c.ID).Msg("server.send busy")
		return
	}
	c.flags |= FlagSent
}

func (s *Server) sendComplete(c *Connection, n int) {
	if !c.flags.Has(FlagSent) || n != c.response.Len() {
		s.logger.Warn().Str("conn", c.ID).Int("n", n).Int("expected", c.response.Len()).
			Str("flags", c.Flags().String()).Msg("server.send complete mismatch")
		return
	}
	observability.RecordBytesSent(n)
	c.response.Release(s.budget)
	c.flags &^= FlagSent
	c.flags |= FlagIdle
	if c.closeRequested {
		s.finalize(c)
		return
	}
	if c.flags.Has(FlagClosing) {
		s.close(c)
		return
	}
	s.process(c)
}

func (s *Server) peerClose(c *Connection) {
	c.flags |= FlagClosing
	s.logger.Debug().Str("conn", c.ID).Str("flags", c.Flags().String()).Msg("server.peer close")
	if c.flags.Has(FlagIdle) || c.flags.Has(FlagSent) {
		s.close(c)
	}
}

// close asks the transport for a graceful close. An in-flight send finishes
// first; the connection is finalized when its completion arrives.
func (s *Server) close(c *Connection) {
	if c.finalized {
		return
	}
	if !c.closeRequested {
		c.closeRequested = true
		c.conn.Close()
	}
	if !c.flags.Has(FlagSent) {
		s.finalize(c)
	}
}

func (s *Server) finalize(c *Connection) {
	if c.finalized {
		return
	}
	c.finalized = true
	c.response.Release(s.budget)
	c.inbox = nil
	c.pending = replyNone
	c.flags = 0
	delete(s.conns, c.ID)
	observability.ConnectionClosed()
	if !c.closeRequested {
		c.conn.Abort()
	}
	s.logger.Info().Str("conn", c.ID).Uint64("messages", c.messages).Uint64("rejects", c.rejects).Msg("server.connection closed")
}
