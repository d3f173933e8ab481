package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/panelctl/internal/protocol/frame"
)

const (
	KindTCP       = "tcp"
	KindWebSocket = "websocket"
)

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// BackoffConfig defines accept retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines listener behavior for both transports.
type Config struct {
	Kind                  string
	ListenAddr            string
	WebSocketPath         string
	Framing               frame.Mode
	InboundLengthPrefixed bool
	Limits                frame.Limits
	// ReadTimeout of zero keeps idle connections open indefinitely.
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	EventBuffer      int
	SecurityMode     SecurityMode
	TLS              TLSConfig
	Backoff          BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Kind:             KindTCP,
		ListenAddr:       ":9874",
		WebSocketPath:    "/ws",
		Framing:          frame.Raw,
		Limits:           frame.DefaultLimits(),
		WriteTimeout:     15 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		EventBuffer:      64,
		SecurityMode:     SecurityModeDevelopment,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	if c.Kind == "" {
		c.Kind = def.Kind
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = def.ListenAddr
	}
	if strings.TrimSpace(c.WebSocketPath) == "" {
		c.WebSocketPath = def.WebSocketPath
	}
	if c.Limits.MaxMessageBytes <= 0 {
		c.Limits = def.Limits
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	return c
}

// Listen opens the listener selected by cfg.Kind.
func Listen(ctx context.Context, cfg Config) (Listener, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Kind {
	case KindWebSocket:
		l, err := ListenWebSocket(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return l, nil
	case KindTCP:
		l, err := ListenTCP(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
