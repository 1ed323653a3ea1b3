package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 30m
quiz:
  dir: ./content
  totalChapters: 12
  immediateFeedback: false
  timezone: Europe/Berlin
remote:
  mode: http
  baseURL: http://progress.internal
reconcile:
  queueSize: 8
  timeout: 3s
log:
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, TTLDuration(cfg.Redis.TTL, time.Minute))
	assert.Equal(t, 12, cfg.Quiz.TotalChapters)
	require.NotNil(t, cfg.Quiz.ImmediateFeedback)
	assert.False(t, *cfg.Quiz.ImmediateFeedback)
	assert.Equal(t, RemoteHTTP, cfg.Remote.Mode)
	assert.Equal(t, 8, cfg.Reconcile.QueueSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Quiz.TotalChapters)
	assert.True(t, *cfg.Quiz.ImmediateFeedback)
	assert.Equal(t, RemoteInProcess, cfg.Remote.Mode)
	assert.Equal(t, 64, cfg.Reconcile.QueueSize)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "redis:\n  addr: file:6379\n")
	t.Setenv("REDIS_ADDR", "env:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "REMOTE_ADMIN_TOKEN=from-dotenv\n")
	t.Setenv("REMOTE_ADMIN_TOKEN", "")
	os.Unsetenv("REMOTE_ADMIN_TOKEN")

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-dotenv", os.Getenv("REMOTE_ADMIN_TOKEN"))

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Remote.AdminToken)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"http without url": "remote:\n  mode: http\n",
		"unknown mode":     "remote:\n  mode: carrier-pigeon\n",
		"bad timezone":     "quiz:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", body))
			assert.Error(t, err)
		})
	}
}

func TestTTLDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
	assert.Equal(t, 2*time.Second, TTLDuration("2s", time.Minute))
}
