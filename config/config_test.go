package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
alloc:
  w_distance: 0.08
  w_freshness: 0.2
  shelf_life_days:
    tomato: 7
reserve:
  retry_limit: 5
inventory:
  backend: sqlite
  path: /tmp/inventory.db
planlog:
  backend: jsonl
  path: /tmp/alloc.log
api:
  enabled: true
  addr: ":9090"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.08, cfg.Alloc.WDistance)
	assert.Equal(t, 0.2, cfg.Alloc.WFreshness)
	assert.Equal(t, 7.0, cfg.Alloc.ShelfLife("tomato"))
	assert.Equal(t, 14.0, cfg.Alloc.ShelfLife("unknown"), "default shelf life applies")
	assert.Equal(t, 5, cfg.Reserve.RetryLimit)
	assert.Equal(t, "sqlite", cfg.Inventory.Backend)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, ":9090", cfg.API.Addr)
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "alloc": {"rounding_unit": 0.5},
  "inventory": {"backend": "memory"}
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Alloc.RoundingUnit)
	assert.Equal(t, "memory", cfg.Inventory.Backend)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `{}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.Alloc.WDistance)
	assert.Equal(t, 0.3, cfg.Alloc.WFreshness)
	assert.Equal(t, 1.3, cfg.Alloc.Tortuosity)
	assert.Equal(t, 3, cfg.Reserve.RetryLimit)
	assert.Equal(t, 2000, cfg.Reserve.CollaboratorTimeoutMs)
	assert.Equal(t, "memory", cfg.Inventory.Backend)
	assert.Equal(t, ":8080", cfg.API.Addr)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
alloc:
  w_distance: 0.05
`)
	t.Setenv("AGRI_ALLOC__W_DISTANCE", "0.11")
	t.Setenv("AGRI_RESERVE__RETRY_LIMIT", "7")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.11, cfg.Alloc.WDistance)
	assert.Equal(t, 7, cfg.Reserve.RetryLimit)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "config.toml", "whatever")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadInvalidBackend(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
inventory:
  backend: oracle
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadSQLiteBackendRequiresPath(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
inventory:
  backend: sqlite
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
