package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Bridge    BridgeConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration. Port "0" picks a free port.
type ServerConfig struct {
	Port            string        `envconfig:"PORT"`
	Host            string        `envconfig:"HOST"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// BridgeConfig holds the settings the window manager reads once at startup.
type BridgeConfig struct {
	MultiClient     bool          `envconfig:"BRIDGE_MULTI_CLIENT"`
	UseCookies      bool          `envconfig:"BRIDGE_USE_COOKIES"`
	EventBlocking   bool          `envconfig:"BRIDGE_EVENT_BLOCKING"`
	ScriptTimeout   time.Duration `envconfig:"BRIDGE_SCRIPT_TIMEOUT"`
	MaxMessageSize  int64         `envconfig:"BRIDGE_MAX_MESSAGE_SIZE"`
	SendBuffer      int           `envconfig:"BRIDGE_SEND_BUFFER"`
	RootFolder      string        `envconfig:"BRIDGE_ROOT_FOLDER"`
	DisconnectGrace time.Duration `envconfig:"BRIDGE_DISCONNECT_GRACE"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL"`
	Development bool   `envconfig:"LOG_DEV"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED"`
}

// Load starts from Default and applies environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile starts from Default, overlays the TOML or YAML file at path and
// then applies environment variables, which win over the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := overlayFile(cfg, path); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "0",
			Host:            "127.0.0.1",
			ShutdownTimeout: 5 * time.Second,
		},
		Bridge: BridgeConfig{
			MultiClient:    false,
			UseCookies:     true,
			EventBlocking:  false,
			ScriptTimeout:  30 * time.Second,
			MaxMessageSize: 16 << 20,
			SendBuffer:     256,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Bridge.ScriptTimeout < 0 {
		return fmt.Errorf("bridge script timeout must not be negative: %s", c.Bridge.ScriptTimeout)
	}
	if c.Bridge.MaxMessageSize <= 0 {
		return fmt.Errorf("bridge max message size must be positive: %d", c.Bridge.MaxMessageSize)
	}
	if c.Bridge.SendBuffer <= 0 {
		return fmt.Errorf("bridge send buffer must be positive: %d", c.Bridge.SendBuffer)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit needs positive rps and burst, got %d/%d",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	return nil
}

// applyEnv only touches fields whose variable is set, so earlier layers
// survive.
func applyEnv(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}
