package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     time.Minute,
			WriteTimeout:    10 * time.Second,
			PingInterval:    54 * time.Second,
			SendBuffer:      256,
			MaxMessageBytes: 65536,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestWebSocketAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:3000", cfg.WebSocket.Addr())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
server:
  shutdown_timeout: 5s
websocket:
  host: 127.0.0.1
  port: 3001
  read_timeout: 1m
  write_timeout: 10s
  ping_interval: 30s
  send_buffer: 64
  max_message_bytes: 32768
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 3001, cfg.WebSocket.Port)
	assert.Equal(t, 64, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
logging:
  level: warn
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.WebSocket.Port)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateShutdownTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ShutdownTimeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateWebSocketPort(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.WebSocket.Port = 65536
	assert.Error(t, cfg.Validate())
}

func TestValidatePingIntervalVsReadTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.PingInterval = cfg.WebSocket.ReadTimeout
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.WebSocket.PingInterval = cfg.WebSocket.ReadTimeout - time.Second
	assert.NoError(t, cfg.Validate())
}

func TestValidateSendBuffer(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.SendBuffer = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateMaxMessageBytes(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.MaxMessageBytes = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		assert.NoError(t, cfg.Validate())
	})
}

func TestPropertyInvalidPortRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		assert.Error(t, cfg.Validate())
	})
}
