// Package config provides configuration management for respkv.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for unusable settings.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the respkv server configuration.
type Config struct {
	// Server settings
	Addr        string        `yaml:"addr"`
	MaxClients  int           `yaml:"max_clients"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// Logging
	LogLevel string `yaml:"log_level"`

	Admin   AdminConfig   `yaml:"admin"`
	HotKeys HotKeysConfig `yaml:"hotkeys"`
}

// AdminConfig controls the HTTP admin listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// HotKeysConfig bounds the key access tracker.
type HotKeysConfig struct {
	MaxKeys     int           `yaml:"max_keys"`
	DecayWindow time.Duration `yaml:"decay_window"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Addr:        ":8000",
		MaxClients:  10000,
		IdleTimeout: 0, // no timeout
		LogLevel:    "info",
		Admin: AdminConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		HotKeys: HotKeysConfig{
			MaxKeys:     10000,
			DecayWindow: time.Minute,
		},
	}
}

// Load reads a YAML file over the defaults. The file must exist; callers
// without a file use Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML in the form Load reads.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr is empty", ErrInvalidConfig)
	}
	if c.MaxClients < 0 {
		return fmt.Errorf("%w: max_clients must not be negative", ErrInvalidConfig)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle_timeout must not be negative", ErrInvalidConfig)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.HotKeys.MaxKeys < 0 || c.HotKeys.DecayWindow < 0 {
		return fmt.Errorf("%w: hotkeys limits must not be negative", ErrInvalidConfig)
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("%w: admin.addr is empty", ErrInvalidConfig)
	}
	return nil
}
