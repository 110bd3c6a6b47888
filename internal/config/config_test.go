package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
broker:
  addr: "127.0.0.1:9000"
client:
  server_addr: "127.0.0.1:9000"
  text:
    enabled: true
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	assert.Equal(t, "127.0.0.1:9000", cfg.Broker.Addr)
	assert.True(t, cfg.Client.Text.Enabled)
	assert.False(t, cfg.Client.Image.Enabled)
	assert.Equal(t, 300, cfg.Client.Text.ClipboardPollMs)
	assert.Equal(t, 500, cfg.Client.RemotePollMs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvOverridesTakePriority(t *testing.T) {
	t.Setenv("CSYNC_BROKER_ADDR", "10.0.0.1:7703")

	cfg := &Config{}
	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	assert.Equal(t, "10.0.0.1:7703", cfg.Broker.Addr)
}
