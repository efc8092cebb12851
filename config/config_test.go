package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minidb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  data_dir: /var/lib/minidb
  pool_size: 32
logger:
  level: debug
telemetry:
  enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/minidb", cfg.Storage.DataDir)
	assert.Equal(t, 32, cfg.Storage.PoolSize)
	assert.Equal(t, int32(64), cfg.Storage.IndexBuckets)
	assert.True(t, cfg.Storage.VerifyBackups)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "minidb", cfg.Telemetry.ServiceName)
}

func TestLoad_Rejects(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage:\n  pool_size: 0\n"), 0o644))
	_, err = Load(bad)
	require.ErrorIs(t, err, ErrInvalidConfig)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("storage: [\n"), 0o644))
	_, err = Load(broken)
	require.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
