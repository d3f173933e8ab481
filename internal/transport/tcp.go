package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/panelctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// TCPListener serves panel connections over TCP or TLS.
type TCPListener struct {
	*hub
	cfg Config
	ln  net.Listener
	rng *rand.Rand
}

// ListenTCP validates cfg, opens the listener and starts accepting.
func ListenTCP(ctx context.Context, cfg Config) (*TCPListener, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	ln, err := cfg.listen()
	if err != nil {
		return nil, err
	}
	return ServeTCP(ctx, ln, cfg), nil
}

// ServeTCP starts accepting on an existing listener.
func ServeTCP(ctx context.Context, ln net.Listener, cfg Config) *TCPListener {
	cfg = cfg.WithDefaults()
	l := &TCPListener{
		hub: newHub(ctx, cfg.EventBuffer),
		cfg: cfg,
		ln:  ln,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	go func() {
		<-l.ctx.Done()
		_ = l.ln.Close()
	}()
	l.wg.Add(1)
	go l.acceptLoop()
	log.Info().Str("addr", ln.Addr().String()).Bool("tls", cfg.TLS.Enabled).
		Str("framing", cfg.Framing.String()).Msg("transport.tcp listening")
	return l
}

func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *TCPListener) Close() error {
	l.shutdown(func() { _ = l.ln.Close() })
	return nil
}

func (l *TCPListener) acceptLoop() {
	defer l.wg.Done()
	attempt := 0
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			attempt++
			delay := NextBackoffDelay(l.cfg.Backoff, attempt, l.rng)
			log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("transport.tcp accept failed")
			select {
			case <-time.After(delay):
			case <-l.ctx.Done():
				return
			}
			continue
		}
		attempt = 0
		l.wg.Add(1)
		go l.serveConn(nc)
	}
}

func (l *TCPListener) serveConn(nc net.Conn) {
	defer l.wg.Done()
	if tc, ok := nc.(*tls.Conn); ok {
		ctx, cancel := context.WithTimeout(l.ctx, l.cfg.HandshakeTimeout)
		err := tc.HandshakeContext(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("remote", nc.RemoteAddr().String()).Msg("transport.tcp tls handshake failed")
			_ = nc.Close()
			return
		}
	}

	c := newStreamConn(l.hub, KindTCP, nc.RemoteAddr().String())
	framing := l.cfg.Framing
	writeTimeout := l.cfg.WriteTimeout
	c.write = func(payload []byte) error {
		if writeTimeout > 0 {
			_ = nc.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		bufs := framing.Buffers(payload)
		_, err := bufs.WriteTo(nc)
		return err
	}
	c.shutdown = func(bool) { _ = nc.Close() }

	if !l.track(c) {
		_ = nc.Close()
		return
	}
	if !c.report(Event{Kind: EventAccept}) {
		c.finish(false)
		l.untrack(c)
		l.wg.Done()
		return
	}
	go c.writeLoop()
	l.readLoop(c, nc)
}

func (l *TCPListener) readLoop(c *streamConn, nc net.Conn) {
	sc := frame.NewScanner(nc, l.cfg.InboundLengthPrefixed, l.cfg.Limits)
	for {
		if l.cfg.ReadTimeout > 0 {
			_ = nc.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		}
		if !sc.Scan() {
			break
		}
		if !c.report(Event{Kind: EventReceive, Data: bytes.Clone(sc.Bytes())}) {
			return
		}
	}
	c.readDone(sc.Err())
}
