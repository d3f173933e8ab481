package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSListener serves panel connections as WebSocket sessions. Every WebSocket
// message is one command; every response is one binary message.
type WSListener struct {
	*hub
	cfg      Config
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
}

func ListenWebSocket(ctx context.Context, cfg Config) (*WSListener, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	ln, err := cfg.listen()
	if err != nil {
		return nil, err
	}
	return ServeWebSocket(ctx, ln, cfg), nil
}

func ServeWebSocket(ctx context.Context, ln net.Listener, cfg Config) *WSListener {
	cfg = cfg.WithDefaults()
	l := &WSListener{
		hub: newHub(ctx, cfg.EventBuffer),
		cfg: cfg,
		ln:  ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Get(cfg.WebSocketPath, l.handleUpgrade)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: cfg.HandshakeTimeout,
	}
	go func() {
		<-l.ctx.Done()
		_ = l.srv.Close()
	}()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("transport.websocket serve failed")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Str("path", cfg.WebSocketPath).
		Bool("tls", cfg.TLS.Enabled).Msg("transport.websocket listening")
	return l
}

func (l *WSListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *WSListener) Close() error {
	l.shutdown(func() { _ = l.srv.Close() })
	return nil
}

func (l *WSListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !l.enter() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer l.wg.Done()

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("transport.websocket upgrade failed")
		return
	}
	ws.SetReadLimit(int64(l.cfg.Limits.MaxMessageBytes))

	c := newStreamConn(l.hub, KindWebSocket, ws.RemoteAddr().String())
	writeTimeout := l.cfg.WriteTimeout
	c.write = func(payload []byte) error {
		if writeTimeout > 0 {
			_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		return ws.WriteMessage(websocket.BinaryMessage, payload)
	}
	c.shutdown = func(graceful bool) {
		if graceful {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = ws.Close()
	}

	if !l.track(c) {
		_ = ws.Close()
		return
	}
	if !c.report(Event{Kind: EventAccept}) {
		c.finish(false)
		l.untrack(c)
		l.wg.Done()
		return
	}
	go c.writeLoop()

	for {
		if l.cfg.ReadTimeout > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.readDone(err)
			return
		}
		if !c.report(Event{Kind: EventReceive, Data: data}) {
			return
		}
	}
}
