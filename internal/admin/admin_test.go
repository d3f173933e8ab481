package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/server"
	"github.com/danmuck/panelctl/internal/testutil/testlog"
	"github.com/danmuck/panelctl/internal/transport"
)

type idleListener struct {
	events chan transport.Event
}

func (l *idleListener) Events() <-chan transport.Event { return l.events }
func (l *idleListener) Addr() net.Addr                 { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (l *idleListener) Close() error                   { return nil }

func newServer(t *testing.T) *server.Server {
	t.Helper()
	s := server.New(server.DefaultConfig())
	if _, err := s.RegisterPage([]byte(`{"TITLE":"home"}`), []protocol.WidgetValue{
		protocol.IntValue(4, true),
		protocol.TextValue("hi", false),
	}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

func get(t *testing.T, a *Admin, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestStaticRoutes(t *testing.T) {
	testlog.Start(t)
	a := New(newServer(t), Config{Name: "test-admin", Version: "test"})

	if rr := get(t, a, "/health"); rr.Code != http.StatusOK || decode(t, rr)["component"] != "test-admin" {
		t.Fatalf("unexpected health %d %s", rr.Code, rr.Body.String())
	}
	if rr := get(t, a, "/ready"); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected not ready before run, got %d", rr.Code)
	}
	rr := get(t, a, "/pages/0")
	if rr.Code != http.StatusOK || rr.Body.String() != `{"TITLE":"home"}` {
		t.Fatalf("unexpected description %d %q", rr.Code, rr.Body.String())
	}
	if rr := get(t, a, "/pages/3"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing page, got %d", rr.Code)
	}
	if rr := get(t, a, "/pages/x"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rr.Code)
	}
	body := decode(t, get(t, a, "/pages"))
	pages, ok := body["pages"].([]any)
	if !ok || len(pages) != 1 {
		t.Fatalf("unexpected pages body %#v", body)
	}
	if rr := get(t, a, "/metrics"); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "panelctl_http_requests_total") {
		t.Fatalf("expected metrics exposition, got %d", rr.Code)
	}
}

func TestLiveRoutes(t *testing.T) {
	testlog.Start(t)
	s := newServer(t)
	a := New(s, Config{})
	l := &idleListener{events: make(chan transport.Event)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, l) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(3 * time.Second)
	for get(t, a, "/ready").Code != http.StatusOK {
		if time.Now().After(deadline) {
			t.Fatalf("server never became ready")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rr := get(t, a, "/pages/0/widgets")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected widgets status %d %s", rr.Code, rr.Body.String())
	}
	var widgets struct {
		Page    int          `json:"page"`
		Widgets []WidgetView `json:"widgets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &widgets); err != nil {
		t.Fatalf("decode widgets: %v", err)
	}
	if len(widgets.Widgets) != 2 || widgets.Widgets[0].Value != "4" || widgets.Widgets[1].Type != "text" || widgets.Widgets[1].Enabled {
		t.Fatalf("unexpected widgets %+v", widgets.Widgets)
	}
	if rr := get(t, a, "/pages/9/widgets"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	body := decode(t, get(t, a, "/connections"))
	if conns, ok := body["connections"].([]any); !ok || len(conns) != 0 {
		t.Fatalf("expected empty connection list, got %#v", body)
	}
}

func TestTokenGuard(t *testing.T) {
	testlog.Start(t)
	a := New(newServer(t), Config{Tokens: []string{"s3cret"}})

	if rr := get(t, a, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("expected open health, got %d", rr.Code)
	}
	if rr := get(t, a, "/pages"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/pages", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}
