package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/agrimarket/alloc/core/alloc"
	"github.com/agrimarket/alloc/core/metrics"
	"github.com/agrimarket/alloc/core/reserve"
	"github.com/agrimarket/alloc/infra/mqtt"
)

// InventoryConfig selects the inventory store backing the engine.
type InventoryConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	// Path is the database location for the sqlite backend.
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *InventoryConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks the backend selection.
func (c InventoryConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("inventory sqlite backend requires a path")
		}
	default:
		return fmt.Errorf("unknown inventory backend %s", c.Backend)
	}
	return nil
}

// APIConfig defines the HTTP API settings.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Config is the root deployment configuration. Allocation weights and
// limits are configured here per deployment, never per request.
type Config struct {
	Alloc     alloc.Config    `json:"alloc"`
	Reserve   reserve.Config  `json:"reserve"`
	Inventory InventoryConfig `json:"inventory"`
	MQTT      mqtt.Config     `json:"mqtt"`
	Metrics   metrics.Config  `json:"metrics"`
	PlanLog   PlanLogConfig   `json:"planlog"`
	API       APIConfig       `json:"api"`
}

// Load reads the configuration file (yaml or json by extension) and
// applies AGRI_-prefixed environment overrides, "__" mapping to ".".
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("AGRI_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "agri_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Alloc.SetDefaults()
	cfg.Reserve.SetDefaults()
	cfg.Inventory.SetDefaults()
	cfg.MQTT.SetDefaults()
	cfg.PlanLog.SetDefaults()
	cfg.API.SetDefaults()
	if err := cfg.Alloc.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Reserve.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Inventory.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.PlanLog.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
