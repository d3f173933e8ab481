// Package admin serves the read-only HTTP view of a running panel server.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/panelctl/internal/auth"
	"github.com/danmuck/panelctl/internal/observability"
	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	inspectTimeout  = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	Name        string
	ListenAddr  string
	CORSOrigins []string
	Version     string
	// Tokens, when set, are required as bearer tokens on every route except
	// /health.
	Tokens []string
}

type Admin struct {
	cfg     Config
	srv     *server.Server
	router  *gin.Engine
	started time.Time
}

func New(srv *server.Server, cfg Config) *Admin {
	observability.RegisterMetrics()
	if cfg.Name == "" {
		cfg.Name = "panelctl-admin"
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if tokens := auth.NewTokenSet(cfg.Tokens...); tokens.Len() > 0 {
		r.Use(requireToken(tokens))
	}

	a := &Admin{cfg: cfg, srv: srv, router: r, started: time.Now()}
	a.registerRoutes()
	return a
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if err := auth.CheckHeader(v, c.GetHeader("Authorization")); err != nil {
			log.Warn().Err(err).Str("path", c.Request.URL.Path).Str("client_ip", c.ClientIP()).Msg("admin.auth refused")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (a *Admin) Router() *gin.Engine {
	return a.router
}

// Serve listens on cfg.ListenAddr until ctx is done.
func (a *Admin) Serve(ctx context.Context) error {
	hs := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.ListenAddr).Msg("admin.serve listening")
		errCh <- hs.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (a *Admin) registerRoutes() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"uptime":    time.Since(a.started).String(),
			"component": a.cfg.Name,
			"version":   a.cfg.Version,
		})
	})

	a.router.GET("/ready", func(c *gin.Context) {
		ready := a.srv.Running()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		budget := a.srv.Budget()
		c.JSON(status, gin.H{
			"ready":         ready,
			"uptime":        time.Since(a.started).String(),
			"budget_in_use": budget.InUse(),
			"budget_peak":   budget.Peak(),
			"budget_limit":  budget.Limit(),
		})
	})

	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router.GET("/pages", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pages": a.srv.Pages()})
	})

	a.router.GET("/pages/:id", func(c *gin.Context) {
		id, ok := pageParam(c)
		if !ok {
			return
		}
		desc, found := a.srv.Description(id)
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
			return
		}
		c.Data(http.StatusOK, "application/json", desc)
	})

	a.router.GET("/pages/:id/widgets", func(c *gin.Context) {
		id, ok := pageParam(c)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), inspectTimeout)
		defer cancel()
		widgets, err := a.srv.Widgets(ctx, id)
		switch {
		case errors.Is(err, server.ErrPageOutOfRange):
			c.JSON(http.StatusNotFound, gin.H{"error": "page not found"})
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"page": id, "widgets": widgetViews(widgets)})
		}
	})

	a.router.GET("/connections", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), inspectTimeout)
		defer cancel()
		conns, err := a.srv.Connections(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connections": conns})
	})
}

func pageParam(c *gin.Context) (protocol.PageID, bool) {
	v, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil || v >= uint64(protocol.NoPageID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page id"})
		return protocol.NoPageID, false
	}
	return protocol.PageID(v), true
}

// WidgetView is the JSON shape of one widget value.
type WidgetView struct {
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

func widgetViews(widgets []protocol.WidgetValue) []WidgetView {
	out := make([]WidgetView, len(widgets))
	for i, w := range widgets {
		out[i] = WidgetView{Index: i, Type: w.Type.String(), Value: w.Display(), Enabled: w.Enabled}
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
