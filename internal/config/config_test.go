package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file present

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./artifacts", cfg.Artifacts.Root)
	assert.Equal(t, "./artifacts/audit.db", cfg.Catalog.Path)
	assert.Equal(t, "forbidden", cfg.Randomness.Mode, "startup default must be the most restrictive mode")
	assert.False(t, cfg.Computation.Strict)
	assert.Equal(t, 8, cfg.Analysis.MinSamples)
	assert.Equal(t, 1000, cfg.Analysis.Iterations)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REPRO_COMPUTATION_STRICT", "true")
	t.Setenv("REPRO_RANDOMNESS_MODE", "seeded")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Computation.Strict)
	assert.Equal(t, "seeded", cfg.Randomness.Mode)
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "not-a-level", Format: "json"})
	require.Error(t, err)
}
