package server

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/danmuck/panelctl/internal/observability"
	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config defines engine limits and pacing.
type Config struct {
	TickInterval     time.Duration
	MemoryLimitBytes int
	MaxInboundQueue  int
}

func DefaultConfig() Config {
	return Config{
		TickInterval:     250 * time.Millisecond,
		MemoryLimitBytes: 0,
		MaxInboundQueue:  16,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.MaxInboundQueue <= 0 {
		c.MaxInboundQueue = def.MaxInboundQueue
	}
	return c
}

type inspectCall struct {
	fn   func()
	done chan struct{}
}

// Server owns the page registry and every connection. Apart from the
// documented snapshot helpers, methods must be called before Run or from
// the loop goroutine (update and idle callbacks).
type Server struct {
	cfg      Config
	registry *Registry
	budget   *protocol.MemoryBudget
	decoder  *protocol.Decoder
	logger   zerolog.Logger

	conns   map[string]*Connection
	idle    func()
	running atomic.Bool
	request atomic.Pointer[Request]
	inspect chan inspectCall
}

func New(cfg Config) *Server {
	cfg = cfg.WithDefaults()
	registry := NewRegistry()
	budget := protocol.NewMemoryBudget(cfg.MemoryLimitBytes)
	return &Server{
		cfg:      cfg,
		registry: registry,
		budget:   budget,
		decoder:  protocol.NewDecoder(registry, budget),
		logger:   log.With().Str("component", "server").Logger(),
		conns:    make(map[string]*Connection),
		inspect:  make(chan inspectCall),
	}
}

func (s *Server) RegisterPage(description []byte, widgets []protocol.WidgetValue, update UpdateFunc) (protocol.PageID, error) {
	if s.running.Load() {
		return protocol.NoPageID, ErrRegistryFrozen
	}
	id, err := s.registry.Register(description, widgets, update)
	if err != nil {
		return id, err
	}
	s.logger.Debug().Uint16("page", uint16(id)).Int("widgets", len(widgets)).Msg("server.register page")
	return id, nil
}

func (s *Server) SetInitialPage(id protocol.PageID) error {
	if s.running.Load() {
		return ErrRegistryFrozen
	}
	return s.registry.SetInitial(id)
}

// RegisterIdleCallback sets fn to run once per loop iteration.
func (s *Server) RegisterIdleCallback(fn func()) {
	s.idle = fn
}

// ChangePage switches the connection of the running update callback.
func (s *Server) ChangePage(id protocol.PageID) error {
	req := s.request.Load()
	if req == nil {
		return ErrNoActiveRequest
	}
	return req.ChangePage(id)
}

func (s *Server) Budget() *protocol.MemoryBudget {
	return s.budget
}

func (s *Server) Running() bool {
	return s.running.Load()
}

// Run drives the event loop until ctx is done or the listener's event channel
// closes. Every connection is finalized before Run returns.
func (s *Server) Run(ctx context.Context, l transport.Listener) error {
	if s.registry.PageCount() == 0 {
		return ErrNoPages
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	s.registry.Freeze()
	defer s.shutdown()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	events := l.Events()
	s.logger.Info().Int("pages", s.registry.PageCount()).Uint16("initial_page", uint16(s.registry.Initial())).
		Str("addr", l.Addr().String()).Msg("server.run started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("server.run stopping")
			return nil
		case ev, ok := <-events:
			if !ok {
				s.logger.Info().Msg("server.run listener closed")
				return nil
			}
			s.Handle(ev)
		case <-ticker.C:
			s.Tick()
		case call := <-s.inspect:
			call.fn()
			close(call.done)
		}
		if s.idle != nil {
			s.idle()
		}
	}
}

// Inspect runs fn on the loop goroutine and waits for it.
func (s *Server) Inspect(ctx context.Context, fn func()) error {
	call := inspectCall{fn: fn, done: make(chan struct{})}
	select {
	case s.inspect <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-call.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) shutdown() {
	for _, c := range s.conns {
		s.finalize(c)
	}
	observability.SetBudgetInUse(s.budget.InUse())
	s.logger.Info().Int64("budget_in_use", s.budget.InUse()).Int64("budget_peak", s.budget.Peak()).Msg("server.run stopped")
}

// PageInfo describes one registered page.
type PageInfo struct {
	ID          protocol.PageID `json:"id"`
	Size        int             `json:"description_bytes"`
	WidgetTypes []string        `json:"widget_types"`
}

// Pages lists registered pages. Page shape is immutable, so this is safe to
// call from any goroutine once Run has started.
func (s *Server) Pages() []PageInfo {
	out := make([]PageInfo, 0, s.registry.PageCount())
	for i := 0; i < s.registry.PageCount(); i++ {
		p, _ := s.registry.Page(protocol.PageID(i))
		types := make([]string, len(p.Widgets))
		for j := range p.Widgets {
			types[j] = p.Widgets[j].Type.String()
		}
		out = append(out, PageInfo{ID: p.ID, Size: len(p.Description), WidgetTypes: types})
	}
	return out
}

// Description returns the registered description bytes of id.
func (s *Server) Description(id protocol.PageID) ([]byte, bool) {
	p, ok := s.registry.Page(id)
	if !ok {
		return nil, false
	}
	return p.Description, true
}

// Widgets copies the live widget values of id on the loop goroutine.
func (s *Server) Widgets(ctx context.Context, id protocol.PageID) ([]protocol.WidgetValue, error) {
	if _, ok := s.registry.Page(id); !ok {
		return nil, ErrPageOutOfRange
	}
	var out []protocol.WidgetValue
	err := s.Inspect(ctx, func() {
		live := s.registry.Widgets(id)
		out = make([]protocol.WidgetValue, len(live))
		for i := range live {
			out[i] = live[i].Clone()
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConnectionInfo is a point-in-time view of one connection.
type ConnectionInfo struct {
	ID          string          `json:"id"`
	Transport   string          `json:"transport"`
	RemoteAddr  string          `json:"remote_addr"`
	AcceptedAt  time.Time       `json:"accepted_at"`
	CurrentPage protocol.PageID `json:"current_page"`
	Flags       string          `json:"flags"`
	Queued      int             `json:"queued"`
	Messages    uint64          `json:"messages"`
	Rejects     uint64          `json:"rejects"`
}

// Connections snapshots every connection on the loop goroutine.
func (s *Server) Connections(ctx context.Context) ([]ConnectionInfo, error) {
	var out []ConnectionInfo
	err := s.Inspect(ctx, func() {
		out = s.snapshotConnections()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) snapshotConnections() []ConnectionInfo {
	out := make([]ConnectionInfo, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, ConnectionInfo{
			ID:          c.ID,
			Transport:   c.Transport,
			RemoteAddr:  c.RemoteAddr,
			AcceptedAt:  c.AcceptedAt,
			CurrentPage: c.CurrentPage,
			Flags:       c.Flags().String(),
			Queued:      c.Queued(),
			Messages:    c.messages,
			Rejects:     c.rejects,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AcceptedAt.Equal(out[j].AcceptedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AcceptedAt.Before(out[j].AcceptedAt)
	})
	return out
}
