package config

import (
	"fmt"
	"os"

	"github.com/danmuck/panelctl/internal/transport"
	gotoml "github.com/pelletier/go-toml/v2"
)

// Template renders a commented config file holding the defaults.
func Template(demo bool) ([]byte, error) {
	def := Default()
	t := def.Transport
	f := File{
		Name:             def.Name,
		ListenAddr:       t.ListenAddr,
		Transport:        t.Kind,
		WebSocketPath:    t.WebSocketPath,
		AdminListenAddr:  def.AdminListenAddr,
		AdminCORSOrigins: []string{"http://localhost:3000"},
		Framing:          t.Framing.String(),
		MaxMessageBytes:  t.Limits.MaxMessageBytes,
		TickInterval:     def.Server.TickInterval.String(),
		ReadTimeout:      t.ReadTimeout.String(),
		WriteTimeout:     t.WriteTimeout.String(),
		MaxInboundQueue:  def.Server.MaxInboundQueue,
		SecurityMode:     string(transport.SecurityModeDevelopment),
		Demo:             demo,
	}
	out, err := gotoml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("config template: %w", err)
	}
	return out, nil
}

func WriteTemplate(path string, demo, overwrite bool) error {
	data, err := Template(demo)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
