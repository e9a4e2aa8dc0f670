package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// BootstrapConfig holds the process configuration loaded at startup
type BootstrapConfig struct {
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Router    RouterConfig    `yaml:"router" toml:"router"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Topics    TopicsConfig    `yaml:"topics" toml:"topics"`
	Reconnect ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" toml:"level"`
	LogPath    string `yaml:"log_path,omitempty" toml:"log_path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// ServerConfig holds the console HTTP server settings
type ServerConfig struct {
	HTTPPort int  `yaml:"http_port" toml:"http_port"`
	Disabled bool `yaml:"disabled" toml:"disabled"`
}

// RouterConfig identifies the WAMP router endpoint
type RouterConfig struct {
	URL                string `yaml:"url" toml:"url"`
	Realm              string `yaml:"realm" toml:"realm"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms" toml:"handshake_timeout_ms"`
	RequestTimeoutMs   int    `yaml:"request_timeout_ms" toml:"request_timeout_ms"`
	KeepAliveMs        int    `yaml:"keepalive_ms" toml:"keepalive_ms"`
}

// SessionConfig holds settings for an established session
type SessionConfig struct {
	TickIntervalMs int    `yaml:"tick_interval_ms" toml:"tick_interval_ms"`
	Procedure      string `yaml:"procedure" toml:"procedure"`
	EventBuffer    int    `yaml:"event_buffer" toml:"event_buffer"`
}

// TopicsConfig names the inbound and outbound topics
type TopicsConfig struct {
	Telemetry string `yaml:"telemetry" toml:"telemetry"`
	Position  string `yaml:"position" toml:"position"`
	PID       string `yaml:"pid" toml:"pid"`
}

// ReconnectConfig holds the retry policy. An interval of zero retries immediately.
type ReconnectConfig struct {
	IntervalMs    *int `yaml:"interval_ms" toml:"interval_ms"`
	MaxIntervalMs int  `yaml:"max_interval_ms" toml:"max_interval_ms"`
}

// LoadBootstrapConfig loads the configuration file at path. Files ending in
// .toml are parsed as TOML, everything else as YAML. An empty path yields the
// defaults.
func LoadBootstrapConfig(path string) (*BootstrapConfig, error) {
	cfg := &BootstrapConfig{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", path, err)
		}

		if strings.EqualFold(filepath.Ext(path), ".toml") {
			err = toml.Unmarshal(data, cfg)
		} else {
			err = yaml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", path, err)
		}
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the fields that have no usable default
func (c *BootstrapConfig) Validate() error {
	if c.Router.URL == "" {
		return fmt.Errorf("missing required field in bootstrap config: router.url")
	}
	if !strings.HasPrefix(c.Router.URL, "ws://") && !strings.HasPrefix(c.Router.URL, "wss://") {
		return fmt.Errorf("invalid router.url '%s': expected ws:// or wss:// scheme", c.Router.URL)
	}
	if c.Router.Realm == "" {
		return fmt.Errorf("missing required field in bootstrap config: router.realm")
	}
	if c.Router.RequestTimeoutMs < 0 || c.Router.KeepAliveMs < 0 {
		return fmt.Errorf("invalid router timeouts: request_timeout_ms and keepalive_ms must not be negative")
	}
	if c.Reconnect.IntervalMs != nil && *c.Reconnect.IntervalMs < 0 {
		return fmt.Errorf("invalid reconnect.interval_ms %d: must not be negative", *c.Reconnect.IntervalMs)
	}
	return nil
}
