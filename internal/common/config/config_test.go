package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "comfyui", cfg.Generation.Mode)
	assert.Equal(t, "http://localhost:8188", cfg.Generation.ComfyUIURL())
	assert.Equal(t, 300*time.Second, cfg.Generation.TimeoutDuration())

	b := cfg.Connectors.Blender
	assert.Equal(t, 9999, b.Port)
	assert.Equal(t, 2*time.Second, b.ProbeTimeout)
	assert.Equal(t, 5*time.Second, b.SettleDelay)
	assert.Equal(t, time.Second, b.PollInterval)
	assert.Equal(t, 30*time.Second, b.ConnectionTimeout)
	assert.Equal(t, 10*time.Second, b.CommandTimeout)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
generation:
  mode: standalone
connectors:
  blender:
    launchMode: none
    commandTimeout: 3s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, "standalone", cfg.Generation.Mode)
	assert.Equal(t, "none", cfg.Connectors.Blender.LaunchMode)
	assert.Equal(t, 3*time.Second, cfg.Connectors.Blender.CommandTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	cfg.Generation.Mode = "cloud"
	cfg.Connectors.Blender.LaunchMode = "ssh"

	err = validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation.mode")
	assert.Contains(t, err.Error(), "launchMode")
}
