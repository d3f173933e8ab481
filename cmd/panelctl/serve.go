package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/panelctl/internal/admin"
	"github.com/danmuck/panelctl/internal/config"
	"github.com/danmuck/panelctl/internal/observability"
	"github.com/danmuck/panelctl/internal/pages/demo"
	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/server"
	"github.com/danmuck/panelctl/internal/transport"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errNoPages = errors.New("no pages to serve: enable demo in the config or pass --demo")

func serveCmd() *cobra.Command {
	var (
		path   string
		demoOn bool
		listen string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the panel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if path != "" {
				loaded, err := config.Load(path)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if cmd.Flags().Changed("demo") {
				cfg.Demo = demoOn
			}
			if listen != "" {
				cfg.Transport.ListenAddr = listen
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&path, "config", "c", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&demoOn, "demo", false, "register the built-in demo pages")
	cmd.Flags().StringVar(&listen, "listen", "", "override listen_addr")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	observability.InitLogger(cfg.Name)
	observability.RegisterMetrics()

	srv := server.New(cfg.Server)
	if cfg.Demo {
		if _, err := demo.Register(srv, demo.NewLEDBank(), nil); err != nil {
			return fmt.Errorf("register demo pages: %w", err)
		}
	}
	if len(srv.Pages()) == 0 {
		return errNoPages
	}
	if cfg.InitialPage != 0 {
		if err := srv.SetInitialPage(protocol.PageID(cfg.InitialPage)); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := transport.Listen(ctx, cfg.Transport)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer l.Close()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(cfg.AdminListenAddr) != "" {
		a := admin.New(srv, admin.Config{
			Name:        cfg.Name + "-admin",
			ListenAddr:  cfg.AdminListenAddr,
			CORSOrigins: cfg.AdminCORSOrigins,
			Tokens:      cfg.AdminTokens,
			Version:     version,
		})
		go func() {
			adminErr <- a.Serve(ctx)
		}()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run(ctx, l)
	}()
	log.Info().Str("transport", cfg.Transport.Kind).Str("addr", l.Addr().String()).
		Str("framing", cfg.Transport.Framing.String()).Bool("demo", cfg.Demo).Msg("panelctl.serve ready")

	select {
	case err := <-runErr:
		return err
	case err := <-adminErr:
		if err != nil {
			cancel()
			<-runErr
			return fmt.Errorf("admin: %w", err)
		}
		return <-runErr
	}
}
