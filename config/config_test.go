package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, "/api/notifications/stream", cfg.API.StreamPath)
	assert.Equal(t, "sse", cfg.Transport.Kind)
	assert.Equal(t, 5, cfg.Transport.MaxReconnectAttempts)
	assert.Equal(t, time.Second, cfg.Reconnect.BaseDelay)
	assert.Equal(t, 15*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 60*time.Second, cfg.Heartbeat.Timeout)
	assert.Equal(t, "keyring", cfg.Credential.Backend)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  kind: ws
  max_reconnect_attempts: 3
reconnect:
  base_delay: 500ms
log:
  level: debug
`), 0o600))

	t.Setenv("IM_NOTIFY_LOG_LEVEL", "warn")
	t.Setenv("IM_NOTIFY_HEARTBEAT_TIMEOUT", "90s")

	cfg, err := LoadConfig([]string{"--config_file", path, "--transport.kind", "sse"})
	require.NoError(t, err)

	assert.Equal(t, "sse", cfg.Transport.Kind, "flag beats file")
	assert.Equal(t, 3, cfg.Transport.MaxReconnectAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.BaseDelay)
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, 90*time.Second, cfg.Heartbeat.Timeout)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig([]string{"--transport.kind", "pigeon"})
	assert.ErrorContains(t, err, "transport.kind")

	t.Setenv("IM_NOTIFY_RECONNECT_JITTER", "1.5")
	_, err = LoadConfig(nil)
	assert.ErrorContains(t, err, "jitter")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig([]string{"--config_file", filepath.Join(t.TempDir(), "nope.yaml")})
	assert.Error(t, err)
}
