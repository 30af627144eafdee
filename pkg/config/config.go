// Package config loads tracer configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/delivery"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
)

// Config holds the tracer's tunable settings.
type Config struct {
	// Receiver is the endpoint records are streamed to. Either a
	// ws:// / wss:// URL or a host:port TCP address.
	Receiver string `yaml:"receiver"`

	// BodyCap is the maximum number of body bytes retained per request.
	// Zero selects the default.
	BodyCap int `yaml:"bodyCap"`

	// QueueCapacity bounds the pending-frame queue; the oldest frame is
	// evicted when full. Zero selects the default.
	QueueCapacity int `yaml:"queueCapacity"`

	// Filter is an optional expr expression; records it rejects are
	// dropped before delivery.
	Filter string `yaml:"filter"`

	// Log configures operational logging.
	Log LogConfig `yaml:"log"`
}

// LogConfig configures operational logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BodyCap:       trace.DefaultBodyCap,
		QueueCapacity: delivery.DefaultQueueCapacity,
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a YAML config file. Unset fields fall back to
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.BodyCap <= 0 {
		cfg.BodyCap = trace.DefaultBodyCap
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = delivery.DefaultQueueCapacity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that Parse cannot default away.
func (c *Config) Validate() error {
	if c.Receiver != "" && !validReceiver(c.Receiver) {
		return fmt.Errorf("invalid receiver %q: want ws(s):// URL or host:port", c.Receiver)
	}
	return nil
}

// WebSocketReceiver reports whether the receiver endpoint is a WebSocket
// URL rather than a plain TCP address.
func (c *Config) WebSocketReceiver() bool {
	return strings.HasPrefix(c.Receiver, "ws://") || strings.HasPrefix(c.Receiver, "wss://")
}

func validReceiver(s string) bool {
	if strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://") {
		return len(s) > len("ws://")
	}
	host, port, ok := strings.Cut(s, ":")
	return ok && host != "" && port != ""
}
