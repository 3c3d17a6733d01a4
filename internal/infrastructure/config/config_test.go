package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "0", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "127.0.0.1:0", cfg.Server.Addr())

	// Bridge config
	assert.False(t, cfg.Bridge.MultiClient)
	assert.True(t, cfg.Bridge.UseCookies)
	assert.False(t, cfg.Bridge.EventBlocking)
	assert.Equal(t, 30*time.Second, cfg.Bridge.ScriptTimeout)
	assert.Equal(t, int64(16<<20), cfg.Bridge.MaxMessageSize)
	assert.Equal(t, 256, cfg.Bridge.SendBuffer)
	assert.Zero(t, cfg.Bridge.DisconnectGrace)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.True(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"HOST":                    "0.0.0.0",
		"BRIDGE_MULTI_CLIENT":     "true",
		"BRIDGE_USE_COOKIES":      "false",
		"BRIDGE_EVENT_BLOCKING":   "true",
		"BRIDGE_SCRIPT_TIMEOUT":   "2s",
		"BRIDGE_MAX_MESSAGE_SIZE": "1048576",
		"BRIDGE_SEND_BUFFER":      "64",
		"BRIDGE_ROOT_FOLDER":      "/srv/ui",
		"BRIDGE_DISCONNECT_GRACE": "500ms",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"RATE_LIMIT_RPS":          "500",
		"RATE_LIMIT_BURST":        "1000",
		"RATE_LIMIT_ENABLED":      "false",
		"METRICS_ENABLED":         "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Bridge.MultiClient)
	assert.False(t, cfg.Bridge.UseCookies)
	assert.True(t, cfg.Bridge.EventBlocking)
	assert.Equal(t, 2*time.Second, cfg.Bridge.ScriptTimeout)
	assert.Equal(t, int64(1<<20), cfg.Bridge.MaxMessageSize)
	assert.Equal(t, 64, cfg.Bridge.SendBuffer)
	assert.Equal(t, "/srv/ui", cfg.Bridge.RootFolder)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge.DisconnectGrace)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Unset variables keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Bridge.ScriptTimeout)
	assert.True(t, cfg.Bridge.UseCookies)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("BRIDGE_SCRIPT_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 30*time.Second, cfg.Bridge.ScriptTimeout)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileTOML(t *testing.T) {
	path := writeFile(t, "webbridge.toml", `
[server]
port = "8123"

[bridge]
multi_client = true
script_timeout = "750ms"
root_folder = "./ui"

[rate_limit]
enabled = false
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "8123", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.True(t, cfg.Bridge.MultiClient)
	assert.True(t, cfg.Bridge.UseCookies)
	assert.Equal(t, 750*time.Millisecond, cfg.Bridge.ScriptTimeout)
	assert.Equal(t, "./ui", cfg.Bridge.RootFolder)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "webbridge.yaml", `
bridge:
  event_blocking: true
  disconnect_grace: 2s
  max_message_size: 4096
  send_buffer: 1024
logging:
  level: debug
  development: true
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.True(t, cfg.Bridge.EventBlocking)
	assert.Equal(t, 2*time.Second, cfg.Bridge.DisconnectGrace)
	assert.Equal(t, int64(4096), cfg.Bridge.MaxMessageSize)
	assert.Equal(t, 1024, cfg.Bridge.SendBuffer)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFileEnvironmentWins(t *testing.T) {
	path := writeFile(t, "webbridge.toml", `
[server]
port = "8123"
host = "0.0.0.0"
`)
	t.Setenv("PORT", "9999")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"unknown extension", "webbridge.ini", "port=1"},
		{"bad toml", "webbridge.toml", "[server\nport ="},
		{"bad duration", "webbridge.toml", "[bridge]\nscript_timeout = \"forever\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.body)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Bridge.ScriptTimeout = -time.Second
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bridge.MaxMessageSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Bridge.SendBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.RateLimit.Burst = 0
	assert.Error(t, cfg.Validate())

	cfg.RateLimit.Enabled = false
	assert.NoError(t, cfg.Validate())
}
