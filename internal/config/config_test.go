package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(300), cfg.TimeoutMs)
	assert.Equal(t, int64(16*1024*1024), cfg.MemoryLimitBytes)
	assert.Equal(t, int64(512*1024), cfg.MaxStackBytes)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, int64(300), cfg.TimeoutMs)
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.TimeoutMs = 500
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(500), loaded.TimeoutMs)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("timeout override", func(t *testing.T) {
		t.Setenv("SANDBOX_TIMEOUT_MS", "750")
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, int64(750), cfg.TimeoutMs)
	})

	t.Run("debug mode override", func(t *testing.T) {
		t.Setenv("SANDBOX_DEBUG_MODE", "true")
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.True(t, cfg.Logging.DebugMode)
	})
}

func TestValidateRejectsNonPositiveCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemoryLimitBytes = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAllowsInfiniteTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeoutMs = -1
	assert.NoError(t, cfg.Validate())
}

func TestGetTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(300), cfg.TimeoutMs)
	assert.NotZero(t, cfg.GetTimeout())

	cfg.TimeoutMs = -1
	assert.Zero(t, cfg.GetTimeout())
}
