package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sandbox keeps the loader away from any real config.yaml in the home
// directory.
func sandbox(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	sandbox(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.Store.Dir)
	assert.Equal(t, 50, cfg.Manager.MaxAgents)
	assert.Equal(t, "edit", cfg.Manager.DefaultMode)
	assert.Equal(t, 2, cfg.Manager.StopGraceSeconds)
	assert.Equal(t, 2*time.Second, cfg.Manager.StopGrace())
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Empty(t, cfg.Bus.URL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "stderr", cfg.Logging.OutputPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	sandbox(t)
	storeDir := t.TempDir()
	t.Setenv("AGENT_STORE_DIR", storeDir)
	t.Setenv("AGENTMUX_MANAGER_MAX_AGENTS", "3")
	t.Setenv("AGENTMUX_SERVER_PORT", "8765")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, storeDir, cfg.Store.Dir)
	assert.Equal(t, 3, cfg.Manager.MaxAgents)
	assert.Equal(t, 8765, cfg.Server.Port)
}

func TestLoadConfigFile(t *testing.T) {
	sandbox(t)
	dir := t.TempDir()
	yaml := `
manager:
  maxAgents: 7
  defaultMode: plan
server:
  port: 9100
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Manager.MaxAgents)
	assert.Equal(t, "plan", cfg.Manager.DefaultMode)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	sandbox(t)

	t.Setenv("AGENTMUX_MANAGER_MAX_AGENTS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxAgents")

	t.Setenv("AGENTMUX_MANAGER_MAX_AGENTS", "5")
	t.Setenv("AGENTMUX_MANAGER_DEFAULT_MODE", "yolo")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defaultMode")
}
