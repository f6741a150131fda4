package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"WUGBOT_DB", "WUGBOT_BACKEND", "WUGBOT_MEDIA_DIR", "WUGBOT_INDEX_DIR", "WUGBOT_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "wugbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: field.db\nlogging:\n  level: debug\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "field.db", cfg.Database.DSN)
	assert.Equal(t, BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "media", cfg.Media.Dir)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("database: [\n"), 0644))
	_, err := Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("database:\n  backend: postgres\n"), 0644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "invalid database backend")

	noIndex := filepath.Join(dir, "noindex.yaml")
	require.NoError(t, os.WriteFile(noIndex, []byte("index:\n  dir: \"\"\n"), 0644))
	_, err = Load(noIndex)
	assert.ErrorContains(t, err, "index dir is required")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WUGBOT_DB", "/tmp/other.db")
	t.Setenv("WUGBOT_MEDIA_DIR", "/tmp/recordings")
	t.Setenv("WUGBOT_INDEX_DIR", "/tmp/index")
	t.Setenv("WUGBOT_LOG_LEVEL", "warn")
	t.Setenv("WUGBOT_BACKEND", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Database.DSN)
	assert.Equal(t, "/tmp/recordings", cfg.Media.Dir)
	assert.Equal(t, "/tmp/index", cfg.Index.Dir)
	assert.Equal(t, "warn", cfg.Logging.Level)

	t.Run("backend", func(t *testing.T) {
		t.Setenv("WUGBOT_BACKEND", BackendMemory)
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, BackendMemory, cfg.Database.Backend)
	})
}

func TestSaveThenLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "wugbot.yaml")
	cfg := DefaultConfig()
	cfg.Media.Dir = "recordings"
	cfg.Logging.Development = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
