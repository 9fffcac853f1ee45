package registry

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// configHeader leads the human-readable mirror so operators know the file is
// generated.
const configHeader = "# context-agent configuration\n\n"

type adapterTable struct {
	LogPath string `toml:"log_path"`
}

type configDocument struct {
	Adapters map[string]adapterTable `toml:"adapters,omitempty"`
}

// syncConfigFile rewrites config.toml from the adapter_configs table so
// operators can inspect adapter wiring without touching the database. One
// [adapters.<name>] table per configured adapter.
func (r *Registry) syncConfigFile() error {
	configs, err := r.AdapterConfigs()
	if err != nil {
		return err
	}

	doc := configDocument{}
	if len(configs) > 0 {
		doc.Adapters = make(map[string]adapterTable, len(configs))
		for adapter, logPath := range configs {
			doc.Adapters[adapter] = adapterTable{LogPath: logPath}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config.toml: %w", err)
	}

	tmp := r.configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config.toml: %w", err)
	}
	if err := os.Rename(tmp, r.configPath); err != nil {
		return fmt.Errorf("failed to replace config.toml: %w", err)
	}
	return nil
}

// ConfigPath returns the location of the config.toml mirror.
func (r *Registry) ConfigPath() string { return r.configPath }
