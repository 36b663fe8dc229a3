package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Tasks.Workers)
	assert.Equal(t, "callhub:online", cfg.Redis.OnlineKey)
	assert.Empty(t, cfg.Push.Endpoint)
}

func TestLoadFile_YamlOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	yaml := `
mode: debug
port: 9090
database:
  driver: sqlite
  dsn: ":memory:"
push:
  endpoint: http://push.local/send
  timeout: 2s
tasks:
  workers: 2
  queue_size: 16
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, ":memory:", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.Push.Timeout)
	assert.Equal(t, 16, cfg.Tasks.QueueSize)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("CALLHUB_PORT", "7000")
	t.Setenv("CALLHUB_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadFile_RejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: mysql\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
}
