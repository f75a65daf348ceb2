package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matkvaid/evse-load-balancer/api"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 25, cfg.FuseSize)
	require.Equal(t, 15, cfg.ChargeLimitHysteresisMinutes)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	require.Equal(t, api.Conservative, mode)
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "fuse_size: 32\nphase_count: 1\novercurrent_mode: optimised\ncharge_limit_hysteresis_minutes: 20\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 32, cfg.FuseSize)

	phases, err := cfg.LivePhases()
	require.NoError(t, err)
	require.Len(t, phases, 1)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	require.Equal(t, api.Optimised, mode)
}

func TestEffectiveFuseSizeDefaultsToFuseSize(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Nil(t, cfg.FuseSizeOverride)
	require.Equal(t, cfg.FuseSize, cfg.EffectiveFuseSize())
}

func TestEffectiveFuseSizeUsesOverrideWhenSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "fuse_size: 32\nfuse_size_override: 20\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.FuseSizeOverride)
	require.Equal(t, 20, cfg.EffectiveFuseSize())
}

func TestLoadRejectsInvalidPhaseCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phase_count: 2\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
