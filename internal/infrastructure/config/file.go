package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config with optional fields so a file only overrides
// the keys it names. Durations are written as strings like "30s".
type fileConfig struct {
	Server struct {
		Port            *string `toml:"port" yaml:"port"`
		Host            *string `toml:"host" yaml:"host"`
		ShutdownTimeout *string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	} `toml:"server" yaml:"server"`
	Bridge struct {
		MultiClient     *bool   `toml:"multi_client" yaml:"multi_client"`
		UseCookies      *bool   `toml:"use_cookies" yaml:"use_cookies"`
		EventBlocking   *bool   `toml:"event_blocking" yaml:"event_blocking"`
		ScriptTimeout   *string `toml:"script_timeout" yaml:"script_timeout"`
		MaxMessageSize  *int64  `toml:"max_message_size" yaml:"max_message_size"`
		SendBuffer      *int    `toml:"send_buffer" yaml:"send_buffer"`
		RootFolder      *string `toml:"root_folder" yaml:"root_folder"`
		DisconnectGrace *string `toml:"disconnect_grace" yaml:"disconnect_grace"`
	} `toml:"bridge" yaml:"bridge"`
	Logging struct {
		Level       *string `toml:"level" yaml:"level"`
		Development *bool   `toml:"development" yaml:"development"`
	} `toml:"logging" yaml:"logging"`
	RateLimit struct {
		RequestsPerSecond *int  `toml:"rps" yaml:"rps"`
		Burst             *int  `toml:"burst" yaml:"burst"`
		Enabled           *bool `toml:"enabled" yaml:"enabled"`
	} `toml:"rate_limit" yaml:"rate_limit"`
	Metrics struct {
		Enabled *bool `toml:"enabled" yaml:"enabled"`
	} `toml:"metrics" yaml:"metrics"`
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Server.Port, fc.Server.Port)
	setString(&cfg.Server.Host, fc.Server.Host)
	if err := setDuration(&cfg.Server.ShutdownTimeout, fc.Server.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		return err
	}

	setBool(&cfg.Bridge.MultiClient, fc.Bridge.MultiClient)
	setBool(&cfg.Bridge.UseCookies, fc.Bridge.UseCookies)
	setBool(&cfg.Bridge.EventBlocking, fc.Bridge.EventBlocking)
	if err := setDuration(&cfg.Bridge.ScriptTimeout, fc.Bridge.ScriptTimeout, "bridge.script_timeout"); err != nil {
		return err
	}
	if fc.Bridge.MaxMessageSize != nil {
		cfg.Bridge.MaxMessageSize = *fc.Bridge.MaxMessageSize
	}
	if fc.Bridge.SendBuffer != nil {
		cfg.Bridge.SendBuffer = *fc.Bridge.SendBuffer
	}
	setString(&cfg.Bridge.RootFolder, fc.Bridge.RootFolder)
	if err := setDuration(&cfg.Bridge.DisconnectGrace, fc.Bridge.DisconnectGrace, "bridge.disconnect_grace"); err != nil {
		return err
	}

	setString(&cfg.Logging.Level, fc.Logging.Level)
	setBool(&cfg.Logging.Development, fc.Logging.Development)

	if fc.RateLimit.RequestsPerSecond != nil {
		cfg.RateLimit.RequestsPerSecond = *fc.RateLimit.RequestsPerSecond
	}
	if fc.RateLimit.Burst != nil {
		cfg.RateLimit.Burst = *fc.RateLimit.Burst
	}
	setBool(&cfg.RateLimit.Enabled, fc.RateLimit.Enabled)

	setBool(&cfg.Metrics.Enabled, fc.Metrics.Enabled)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*dst = d
	return nil
}
