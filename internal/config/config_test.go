package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 48484, cfg.Master.Port)
	assert.True(t, cfg.Admin.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Submit.Timeout)
}

func TestLoadMergesOverFilePresentFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
master:
  port: 9999
metrics:
  enabled: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Master.Port)
	assert.Equal(t, "0.0.0.0", cfg.Master.Host) // untouched default
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Admin.Enabled) // untouched default
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
