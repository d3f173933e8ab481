package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/danmuck/panelctl/internal/protocol/frame"
	"github.com/gorilla/websocket"
)

// Client is a blocking panel client for either transport. It is used by the
// send command and by tests.
type Client struct {
	cfg Config
	nc  net.Conn
	r   *bufio.Reader
	ws  *websocket.Conn
}

// Dial connects to addr using cfg.Kind, cfg.TLS and the configured framing.
func Dial(ctx context.Context, addr string, cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClient(); err != nil {
		return nil, err
	}
	var tlsCfg *tls.Config
	if cfg.TLS.Enabled {
		var err error
		if tlsCfg, err = cfg.ClientTLSConfig(addr); err != nil {
			return nil, err
		}
	}

	if cfg.Kind == KindWebSocket {
		scheme := "ws"
		if tlsCfg != nil {
			scheme = "wss"
		}
		u := url.URL{Scheme: scheme, Host: addr, Path: cfg.WebSocketPath}
		dialer := websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  tlsCfg,
		}
		ws, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, err
		}
		return &Client{cfg: cfg, ws: ws}, nil
	}

	dialer := &net.Dialer{Timeout: cfg.HandshakeTimeout}
	var nc net.Conn
	var err error
	if tlsCfg != nil {
		td := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
		nc, err = td.DialContext(ctx, "tcp", addr)
	} else {
		nc, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, nc: nc, r: bufio.NewReader(nc)}, nil
}

// Send writes one command.
func (c *Client) Send(msg []byte) error {
	if c.ws != nil {
		return c.ws.WriteMessage(websocket.TextMessage, msg)
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if c.cfg.InboundLengthPrefixed {
		var prefix [frame.PrefixLen]byte
		binary.BigEndian.PutUint32(prefix[:], uint32(len(msg)))
		bufs := net.Buffers{prefix[:], msg}
		_, err := bufs.WriteTo(c.nc)
		return err
	}
	_, err := c.nc.Write(msg)
	return err
}

// Receive reads one response, waiting at most timeout (zero waits forever).
func (c *Client) Receive(timeout time.Duration) ([]byte, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if c.ws != nil {
		_ = c.ws.SetReadDeadline(deadline)
		_, data, err := c.ws.ReadMessage()
		return data, err
	}
	_ = c.nc.SetReadDeadline(deadline)
	return frame.ReadResponse(c.r, c.cfg.Framing, frame.Limits{MaxMessageBytes: frame.PrefixLen + 100000})
}

// CloseWrite half-closes the TCP stream so the server sees a peer close while
// responses can still be read.
func (c *Client) CloseWrite() error {
	if c.ws != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		return c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	type closeWriter interface{ CloseWrite() error }
	cw, ok := c.nc.(closeWriter)
	if !ok {
		return fmt.Errorf("transport: %T cannot half-close", c.nc)
	}
	return cw.CloseWrite()
}

func (c *Client) Close() error {
	if c.ws != nil {
		return c.ws.Close()
	}
	return c.nc.Close()
}
