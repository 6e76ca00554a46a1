package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 0, cfg.Gate.MaxConcurrency)
	require.Equal(t, 8, cfg.Gate.QueueMax)
	require.Equal(t, 3*time.Second, cfg.JobEstimate())
	require.Equal(t, int64(30), cfg.Limits.MaxUploadMB)
	require.Equal(t, 8000, cfg.Limits.MaxSidePx)
	require.Equal(t, 4000, cfg.Prep.MaxDimension)
	require.Equal(t, 210, cfg.Trace.Threshold)
	require.False(t, cfg.RateLimit.Enabled)
}

func TestLoad_PresetsCarryToolDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	logo, ok := cfg.Presets["logo"]
	require.True(t, ok)
	require.Equal(t, 210, logo.Threshold)
	require.Equal(t, 2, logo.TurdSize)
	require.InDelta(t, 0.28, logo.OptTolerance, 1e-9)

	sticker, ok := cfg.Presets["sticker"]
	require.True(t, ok)
	require.Equal(t, 224, sticker.Threshold)
	require.Equal(t, 3, sticker.TurdSize)
	require.InDelta(t, 0.35, sticker.OptTolerance, 1e-9)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9090\ngate:\n  queue_max: 4\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 4, cfg.Gate.QueueMax)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Server.Port = 0
	require.ErrorContains(t, bad.Validate(), "server.port")

	bad = cfg
	bad.Trace.Threshold = 300
	require.ErrorContains(t, bad.Validate(), "trace.threshold")

	bad = cfg
	bad.Auth.Enabled = true
	require.ErrorContains(t, bad.Validate(), "auth.api_key")

	bad = cfg
	bad.RateLimit.Enabled = true
	bad.RateLimit.RPS = 0
	require.ErrorContains(t, bad.Validate(), "ratelimit.rps")
}
