// Package config loads and validates the YAML configuration of the wsbridge
// demo binary.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "10ms" or "5s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig enables shipping log lines to a Loki endpoint.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url,omitempty"`
	Labels  map[string]string `yaml:"labels,omitempty"`
}

// LoggingConfig controls the zerolog root logger.
type LoggingConfig struct {
	Level  string     `yaml:"level,omitempty"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki,omitempty"`
}

// TelemetryConfig controls the Prometheus endpoint.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// ConnectionConfig declares one WebSocket connection and its callback
// scripts. The callback bodies are expr programs; an empty body means the
// callback is absent (no-op).
type ConnectionConfig struct {
	ID           string `yaml:"id,omitempty"`
	URL          string `yaml:"url"`
	OnConnect    string `yaml:"on_connect,omitempty"`
	OnMessage    string `yaml:"on_message,omitempty"`
	OnError      string `yaml:"on_error,omitempty"`
	OnDisconnect string `yaml:"on_disconnect,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	PollInterval     Duration           `yaml:"poll_interval,omitempty"`
	DispatchInterval Duration           `yaml:"dispatch_interval,omitempty"`
	HandshakeTimeout Duration           `yaml:"handshake_timeout,omitempty"`
	HotReload        bool               `yaml:"hot_reload,omitempty"`
	Logging          LoggingConfig      `yaml:"logging,omitempty"`
	Telemetry        TelemetryConfig    `yaml:"telemetry,omitempty"`
	Connections      []ConnectionConfig `yaml:"connections"`
}

const (
	defaultPollInterval     = 10 * time.Millisecond
	defaultDispatchInterval = 10 * time.Millisecond
	defaultHandshakeTimeout = 30 * time.Second
	defaultTelemetryListen  = ":19090"
)

// Load reads, parses, defaults and validates the configuration file. Unknown
// fields are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	cfg := &Config{}
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval.Duration <= 0 {
		c.PollInterval.Duration = defaultPollInterval
	}
	if c.DispatchInterval.Duration <= 0 {
		c.DispatchInterval.Duration = defaultDispatchInterval
	}
	if c.HandshakeTimeout.Duration <= 0 {
		c.HandshakeTimeout.Duration = defaultHandshakeTimeout
	}
	if c.Telemetry.Enabled && c.Telemetry.Listen == "" {
		c.Telemetry.Listen = defaultTelemetryListen
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Connections))
	for i, conn := range c.Connections {
		if conn.URL == "" {
			return fmt.Errorf("connection %d: url is required", i)
		}
		if conn.ID != "" {
			if _, ok := seen[conn.ID]; ok {
				return fmt.Errorf("connection %d: duplicate id %q", i, conn.ID)
			}
			seen[conn.ID] = struct{}{}
		}
	}
	if c.Logging.Loki.Enabled && c.Logging.Loki.URL == "" {
		return fmt.Errorf("logging.loki: url is required when enabled")
	}
	return nil
}
