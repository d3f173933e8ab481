package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/panelctl/internal/protocol/frame"
	"github.com/danmuck/panelctl/internal/testutil/testlog"
	"github.com/danmuck/panelctl/internal/testutil/tlstest"
)

func nextEvent(t *testing.T, l Listener) Event {
	t.Helper()
	select {
	case ev, ok := <-l.Events():
		if !ok {
			t.Fatalf("event channel closed")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func expectEvent(t *testing.T, l Listener, kind EventKind) Event {
	t.Helper()
	ev := nextEvent(t, l)
	if ev.Kind != kind {
		t.Fatalf("expected %s event, got %s (err=%v)", kind, ev.Kind, ev.Err)
	}
	return ev
}

func loopback(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func TestTCPEventFlow(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := DefaultConfig()
	cfg.Framing = frame.LengthPrefixed
	l := ServeTCP(ctx, loopback(t), cfg)
	defer l.Close()

	client, err := Dial(ctx, l.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	conn := expectEvent(t, l, EventAccept).Conn
	if conn.Transport() != KindTCP || conn.ID() == "" {
		t.Fatalf("unexpected conn identity: %s %q", conn.Transport(), conn.ID())
	}
	payload := []byte(`{"VERSION":1,"PAGE":00000}`)
	if !conn.Send(payload) {
		t.Fatalf("expected send to be accepted")
	}
	if done := expectEvent(t, l, EventSendComplete); done.N != len(payload) {
		t.Fatalf("expected send complete of %d bytes, got %d", len(payload), done.N)
	}
	got, err := client.Receive(3 * time.Second)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("unexpected client read %q err=%v", got, err)
	}

	if err := client.Send([]byte(`{"CMD":"POLL"} {"CMD":"GET","VAL":{"PAGE":0}}`)); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if ev := expectEvent(t, l, EventReceive); string(ev.Data) != `{"CMD":"POLL"}` {
		t.Fatalf("unexpected first message %q", ev.Data)
	}
	if ev := expectEvent(t, l, EventReceive); string(ev.Data) != `{"CMD":"GET","VAL":{"PAGE":0}}` {
		t.Fatalf("unexpected second message %q", ev.Data)
	}

	if err := client.CloseWrite(); err != nil {
		t.Fatalf("close write: %v", err)
	}
	expectEvent(t, l, EventPeerClose)
	conn.Close()
	if _, err := client.Receive(3 * time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after server close, got %v", err)
	}
}

func TestTCPInboundLengthPrefixed(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.InboundLengthPrefixed = true
	l := ServeTCP(ctx, loopback(t), cfg)
	defer l.Close()

	client, err := Dial(ctx, l.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	expectEvent(t, l, EventAccept)

	if err := client.Send([]byte(`{"CMD":"POLL"}`)); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if ev := expectEvent(t, l, EventReceive); string(ev.Data) != `{"CMD":"POLL"}` {
		t.Fatalf("unexpected message %q", ev.Data)
	}
}

func TestTCPOversizeMessageIsError(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Limits = frame.Limits{MaxMessageBytes: 16}
	l := ServeTCP(ctx, loopback(t), cfg)
	defer l.Close()

	client, err := Dial(ctx, l.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	expectEvent(t, l, EventAccept)
	if err := client.Send([]byte(`{"CMD":"SET","VAL":[0,"aaaaaaaaaaaaaaaa"]}`)); err != nil {
		t.Fatalf("client send: %v", err)
	}
	ev := expectEvent(t, l, EventError)
	if !errors.Is(ev.Err, ErrReadFailed) {
		t.Fatalf("expected ErrReadFailed, got %v", ev.Err)
	}
}

func TestStreamConnSingleSlotAndGracefulClose(t *testing.T) {
	testlog.Start(t)
	h := newHub(context.Background(), 8)
	release := make(chan struct{})
	var shutdowns atomic.Int32
	var graceful atomic.Bool
	c := newStreamConn(h, KindTCP, "fake")
	c.write = func([]byte) error {
		<-release
		return nil
	}
	c.shutdown = func(g bool) {
		shutdowns.Add(1)
		graceful.Store(g)
	}
	if !h.track(c) {
		t.Fatalf("track failed")
	}
	go c.writeLoop()

	if !c.Send([]byte("abc")) {
		t.Fatalf("expected first send accepted")
	}
	if c.Send([]byte("def")) {
		t.Fatalf("expected second send refused while busy")
	}
	c.Close()
	if c.Send([]byte("ghi")) {
		t.Fatalf("expected send refused after close")
	}
	close(release)

	select {
	case ev := <-h.events:
		if ev.Kind != EventSendComplete || ev.N != 3 {
			t.Fatalf("expected send complete of 3 bytes, got %s n=%d", ev.Kind, ev.N)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for send complete")
	}
	deadline := time.Now().Add(3 * time.Second)
	for h.active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("writer did not finish after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.shutdown(func() {})
	if shutdowns.Load() != 1 || !graceful.Load() {
		t.Fatalf("expected one graceful shutdown, got %d graceful=%v", shutdowns.Load(), graceful.Load())
	}
	if _, ok := <-h.events; ok {
		t.Fatalf("expected events closed after shutdown")
	}
}

func TestTCPMutualTLS(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "panel-ca")
	serverCert, serverKey := ca.IssueLoopbackServerCert(t, dir)
	clientCert, clientKey := ca.IssueClientCert(t, dir, "panel-client")

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.SecurityMode = SecurityModeProduction
	cfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: serverCert, KeyFile: serverKey, CAFile: ca.CAFile()}
	l, err := ListenTCP(ctx, cfg)
	if err != nil {
		t.Fatalf("listen tls: %v", err)
	}
	defer l.Close()

	clientCfg := DefaultConfig()
	clientCfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: clientCert, KeyFile: clientKey, CAFile: ca.CAFile()}
	client, err := Dial(ctx, l.Addr().String(), clientCfg)
	if err != nil {
		t.Fatalf("dial tls: %v", err)
	}
	defer client.Close()

	conn := expectEvent(t, l, EventAccept).Conn
	if !conn.Send([]byte(`{"VERSION":1,"PAGE":00000}`)) {
		t.Fatalf("expected send accepted")
	}
	expectEvent(t, l, EventSendComplete)
	if got, err := client.Receive(3 * time.Second); err != nil || string(got) != `{"VERSION":1,"PAGE":00000}` {
		t.Fatalf("unexpected tls read %q err=%v", got, err)
	}

	anon := DefaultConfig()
	anon.TLS = TLSConfig{Enabled: true, CAFile: ca.CAFile()}
	stranger, err := Dial(ctx, l.Addr().String(), anon)
	if err == nil {
		defer stranger.Close()
		if _, err := stranger.Receive(3 * time.Second); err == nil {
			t.Fatalf("expected client without certificate to be refused")
		}
	}
	select {
	case ev := <-l.Events():
		t.Fatalf("expected no event for refused client, got %s", ev.Kind)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWebSocketEventFlow(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Kind = KindWebSocket
	l := ServeWebSocket(ctx, loopback(t), cfg)
	defer l.Close()

	client, err := Dial(ctx, l.Addr().String(), cfg)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer client.Close()

	conn := expectEvent(t, l, EventAccept).Conn
	if conn.Transport() != KindWebSocket {
		t.Fatalf("expected websocket conn, got %s", conn.Transport())
	}
	if err := client.Send([]byte(`{"CMD":"POLL"}`)); err != nil {
		t.Fatalf("client send: %v", err)
	}
	if ev := expectEvent(t, l, EventReceive); string(ev.Data) != `{"CMD":"POLL"}` {
		t.Fatalf("unexpected message %q", ev.Data)
	}
	reply := append([]byte(`{"VAL":00005}`), 0, 0, 0, 9, 1)
	if !conn.Send(reply) {
		t.Fatalf("expected send accepted")
	}
	if done := expectEvent(t, l, EventSendComplete); done.N != len(reply) {
		t.Fatalf("expected %d bytes sent, got %d", len(reply), done.N)
	}
	if got, err := client.Receive(3 * time.Second); err != nil || !bytes.Equal(got, reply) {
		t.Fatalf("unexpected websocket read %v err=%v", got, err)
	}
	if err := client.CloseWrite(); err != nil {
		t.Fatalf("close: %v", err)
	}
	expectEvent(t, l, EventPeerClose)
}

func TestWebSocketUnknownPath(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Kind = KindWebSocket
	l := ServeWebSocket(ctx, loopback(t), cfg)
	defer l.Close()

	wrong := cfg
	wrong.WebSocketPath = "/elsewhere"
	if c, err := Dial(ctx, l.Addr().String(), wrong); err == nil {
		c.Close()
		t.Fatalf("expected upgrade on unknown path to fail")
	}
	select {
	case ev := <-l.Events():
		t.Fatalf("expected no event, got %s", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
