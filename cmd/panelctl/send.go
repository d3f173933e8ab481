package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/panelctl/internal/protocol"
	"github.com/danmuck/panelctl/internal/protocol/frame"
	"github.com/danmuck/panelctl/internal/transport"
	"github.com/spf13/cobra"
)

type sendOptions struct {
	addr     string
	types    string
	ws       bool
	wsPath   string
	prefixed bool
	timeout  time.Duration
	tls      transport.TLSConfig
}

func sendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send <json>...",
		Short: "Connect, print the greeting, send commands and print each reply",
		Example: `  panelctl send --addr 127.0.0.1:9874 '{"CMD":"GET","VAL":{"PAGE":0}}'
  panelctl send --types i,i,f,f '{"CMD":"POLL"}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return send(ctx, cmd.OutOrStdout(), opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "127.0.0.1:9874", "server address")
	f.StringVar(&opts.types, "types", "", "comma separated widget types (int|float|text) used to decode poll replies")
	f.BoolVar(&opts.ws, "ws", false, "connect over websocket")
	f.StringVar(&opts.wsPath, "ws-path", "/ws", "websocket upgrade path")
	f.BoolVar(&opts.prefixed, "prefixed", false, "expect length-prefixed responses")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "overall timeout")
	f.BoolVar(&opts.tls.Enabled, "tls", false, "use tls")
	f.StringVar(&opts.tls.CAFile, "tls-ca", "", "ca bundle for the server certificate")
	f.StringVar(&opts.tls.CertFile, "tls-cert", "", "client certificate for mutual tls")
	f.StringVar(&opts.tls.KeyFile, "tls-key", "", "client key for mutual tls")
	f.BoolVar(&opts.tls.InsecureSkipVerify, "tls-insecure", false, "skip server certificate verification")
	return cmd
}

func (o sendOptions) transportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	if o.ws {
		cfg.Kind = transport.KindWebSocket
	}
	cfg.WebSocketPath = o.wsPath
	if o.prefixed {
		cfg.Framing = frame.LengthPrefixed
	}
	cfg.TLS = o.tls
	cfg.TLS.Mutual = o.tls.CertFile != ""
	return cfg
}

func parseTypes(s string) ([]protocol.WidgetType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]protocol.WidgetType, 0, len(parts))
	for _, p := range parts {
		t, ok := protocol.ParseWidgetType(strings.ToLower(strings.TrimSpace(p)))
		if !ok {
			return nil, fmt.Errorf("unknown widget type %q", p)
		}
		out = append(out, t)
	}
	return out, nil
}

func send(ctx context.Context, out io.Writer, opts sendOptions, msgs []string) error {
	types, err := parseTypes(opts.types)
	if err != nil {
		return err
	}
	client, err := transport.Dial(ctx, opts.addr, opts.transportConfig())
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer client.Close()

	wait := func() time.Duration {
		if d, ok := ctx.Deadline(); ok {
			return time.Until(d)
		}
		return 0
	}
	greeting, err := client.Receive(wait())
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	fmt.Fprintf(out, "< %s\n", greeting)

	for _, msg := range msgs {
		if err := client.Send([]byte(msg)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		fmt.Fprintf(out, "> %s\n", msg)
		reply, err := client.Receive(wait())
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
		printReply(out, reply, types)
	}
	return nil
}

func printReply(out io.Writer, reply []byte, types []protocol.WidgetType) {
	body, err := protocol.SplitPoll(reply)
	if err != nil {
		fmt.Fprintf(out, "< %s\n", reply)
		return
	}
	fmt.Fprintf(out, "< %s (%d byte body)\n", reply[:len(reply)-len(body)], len(body))
	if len(types) == 0 {
		fmt.Fprintf(out, "  % x\n", body)
		return
	}
	values, err := protocol.DecodePoll(reply, types)
	if err != nil {
		fmt.Fprintf(out, "  decode failed: %v\n  % x\n", err, body)
		return
	}
	for i, v := range values {
		fmt.Fprintf(out, "  [%d] %s\n", i, v)
	}
}
