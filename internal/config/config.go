// Package config holds the application configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/siltdb/silt/internal/storage"
)

// Config holds the full database configuration.
type Config struct {
	Storage storage.Config `yaml:"storage"`
	Logging LoggingConfig  `yaml:"logging"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Storage: storage.DefaultConfig(),
		Logging: DefaultLoggingConfig(),
	}
}

// Load reads a YAML configuration file.
// Order: defaults -> file -> ApplyDefaults -> ApplyEnvOverrides -> Validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.finish()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish() {
	c.Storage.ApplyDefaults()
	c.Logging.ApplyDefaults()
	c.ApplyEnvOverrides()
}

// ApplyEnvOverrides lets the environment win over file values and defaults.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("SILT_STORAGE_BACKEND"); val != "" {
		c.Storage.Type = val
	}
	if val := os.Getenv("SILT_STORAGE_PATH"); val != "" {
		c.Storage.Path = val
	}
	c.Logging.ApplyEnvOverrides()
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}
