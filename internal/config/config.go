// Package config loads panelctl TOML files onto defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/panelctl/internal/protocol/frame"
	"github.com/danmuck/panelctl/internal/server"
	"github.com/danmuck/panelctl/internal/transport"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved runtime configuration.
type Config struct {
	Name             string
	Transport        transport.Config
	Server           server.Config
	AdminListenAddr  string
	AdminCORSOrigins []string
	AdminTokens      []string
	InitialPage      uint16
	Demo             bool
}

func Default() Config {
	return Config{
		Name:            "panelctl",
		Transport:       transport.DefaultConfig(),
		Server:          server.DefaultConfig(),
		AdminListenAddr: "127.0.0.1:9875",
	}
}

// File is the on-disk shape. Durations are Go duration strings.
type File struct {
	Name                  string   `toml:"name" comment:"instance name used in logs and metrics"`
	ListenAddr            string   `toml:"listen_addr" comment:"protocol listener address"`
	Transport             string   `toml:"transport" comment:"tcp or websocket"`
	WebSocketPath         string   `toml:"websocket_path" comment:"upgrade path when transport is websocket"`
	AdminListenAddr       string   `toml:"admin_listen_addr" comment:"admin HTTP address, empty disables it"`
	AdminCORSOrigins      []string `toml:"admin_cors_origins"`
	AdminTokens           []string `toml:"admin_tokens" comment:"bearer tokens required by the admin API, empty leaves it open"`
	Framing               string   `toml:"framing" comment:"outbound framing: raw or length_prefixed"`
	InboundLengthPrefixed bool     `toml:"inbound_length_prefixed"`
	MaxMessageBytes       int      `toml:"max_message_bytes"`
	TickInterval          string   `toml:"tick_interval"`
	ReadTimeout           string   `toml:"read_timeout" comment:"0s keeps idle connections open"`
	WriteTimeout          string   `toml:"write_timeout"`
	MemoryLimitBytes      int      `toml:"memory_limit_bytes" comment:"response and token memory cap, 0 is unlimited"`
	MaxInboundQueue       int      `toml:"max_inbound_queue"`
	SecurityMode          string   `toml:"security_mode" comment:"development or production (production requires mutual tls)"`
	TLSEnabled            bool     `toml:"tls_enabled"`
	TLSMutual             bool     `toml:"tls_mutual"`
	TLSCertFile           string   `toml:"tls_cert_file"`
	TLSKeyFile            string   `toml:"tls_key_file"`
	TLSCAFile             string   `toml:"tls_ca_file"`
	InitialPage           int      `toml:"initial_page"`
	Demo                  bool     `toml:"demo" comment:"register the built-in demo pages"`
}

// Load decodes path and overlays every key it defines onto Default().
func Load(path string) (Config, error) {
	var raw File
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}
	cfg, err := overlay(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlay(cfg Config, raw File, meta toml.MetaData) (Config, error) {
	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Name = name
		}
	}
	if meta.IsDefined("listen_addr") {
		cfg.Transport.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("transport") {
		cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("websocket_path") {
		cfg.Transport.WebSocketPath = strings.TrimSpace(raw.WebSocketPath)
	}
	if meta.IsDefined("admin_listen_addr") {
		cfg.AdminListenAddr = strings.TrimSpace(raw.AdminListenAddr)
	}
	if meta.IsDefined("admin_cors_origins") {
		cfg.AdminCORSOrigins = normalizeList(raw.AdminCORSOrigins)
	}
	if meta.IsDefined("admin_tokens") {
		cfg.AdminTokens = normalizeList(raw.AdminTokens)
	}
	if meta.IsDefined("framing") {
		mode, err := frame.ParseMode(raw.Framing)
		if err != nil {
			return cfg, fmt.Errorf("parse framing: %w", err)
		}
		cfg.Transport.Framing = mode
	}
	if meta.IsDefined("inbound_length_prefixed") {
		cfg.Transport.InboundLengthPrefixed = raw.InboundLengthPrefixed
	}
	if meta.IsDefined("max_message_bytes") {
		cfg.Transport.Limits.MaxMessageBytes = raw.MaxMessageBytes
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"tick_interval", raw.TickInterval, &cfg.Server.TickInterval},
		{"read_timeout", raw.ReadTimeout, &cfg.Transport.ReadTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Transport.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return cfg, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("memory_limit_bytes") {
		cfg.Server.MemoryLimitBytes = raw.MemoryLimitBytes
	}
	if meta.IsDefined("max_inbound_queue") {
		cfg.Server.MaxInboundQueue = raw.MaxInboundQueue
	}
	if meta.IsDefined("security_mode") {
		cfg.Transport.SecurityMode = transport.NormalizeSecurityMode(transport.SecurityMode(raw.SecurityMode))
	}
	if meta.IsDefined("tls_enabled") {
		cfg.Transport.TLS.Enabled = raw.TLSEnabled
	}
	if meta.IsDefined("tls_mutual") {
		cfg.Transport.TLS.Mutual = raw.TLSMutual
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.Transport.TLS.CertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.Transport.TLS.KeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.Transport.TLS.CAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("initial_page") {
		if raw.InitialPage < 0 || raw.InitialPage >= 0xFFFF {
			return cfg, fmt.Errorf("%w: initial_page %d", ErrInvalid, raw.InitialPage)
		}
		cfg.InitialPage = uint16(raw.InitialPage)
	}
	if meta.IsDefined("demo") {
		cfg.Demo = raw.Demo
	}
	return cfg, nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Transport.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	}
	t := c.Transport.WithDefaults()
	if t.Kind == transport.KindWebSocket && !strings.HasPrefix(t.WebSocketPath, "/") {
		return fmt.Errorf("%w: websocket_path must start with /", ErrInvalid)
	}
	if c.Transport.Limits.MaxMessageBytes < 0 {
		return fmt.Errorf("%w: max_message_bytes must not be negative", ErrInvalid)
	}
	if c.Transport.ReadTimeout < 0 || c.Transport.WriteTimeout < 0 || c.Server.TickInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.Server.MemoryLimitBytes < 0 || c.Server.MaxInboundQueue < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalid)
	}
	if err := t.ValidateServer(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
