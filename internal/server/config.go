// Package server provides configuration loading with environment parsing, an
// optional YAML overlay, and sanitized runtime defaults.
package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting: a connection may burst Burst messages, refilled over
// RefillInterval.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" envDefault:"10" yaml:"burst"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1s" yaml:"refill_interval"`
}

// Config holds the server configuration, including transport limits, origin
// access control, and logging settings.
type Config struct {
	Port            string          `env:"PORT" envDefault:"8080" yaml:"port"`
	AllowedOrigins  []string        `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000" yaml:"allowed_origins"`
	MaxMessageSize  int64           `env:"MAX_MESSAGE_SIZE" envDefault:"4096" yaml:"max_message_size"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ShutdownTimeout time.Duration   `env:"SHUTDOWN_TIMEOUT" envDefault:"30s" yaml:"shutdown_timeout"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json" yaml:"log_format"`
	LogFile   string `env:"LOG_FILE" yaml:"log_file"`

	ConfigFile string `env:"CONFIG_FILE" yaml:"-"`
}

// Load builds the configuration from the environment. When CONFIG_FILE points
// at a YAML file, values from the file take precedence over the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.ConfigFile != "" {
		data, err := os.ReadFile(cfg.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", cfg.ConfigFile, err)
		}
	}

	cfg.sanitize()
	return cfg, nil
}

// NewConfig returns a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := &Config{
		Port:            "8080",
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxMessageSize:  4096,
		RateLimit:       RateLimitConfig{Burst: 10, RefillInterval: time.Second},
		ShutdownTimeout: 30 * time.Second,
		LogLevel:        "info",
		LogFormat:       "json",
	}
	cfg.sanitize()
	return cfg
}

func (c *Config) sanitize() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	trimmed := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if o := strings.TrimSpace(origin); o != "" {
			trimmed = append(trimmed, o)
		}
	}
	c.AllowedOrigins = trimmed
}

// Addr returns the listen address derived from the configured port.
func (c *Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}
