package storage

import (
	"errors"
	"fmt"
)

// Backend types selectable through Config.
const (
	TypeMemory = "memory"
	TypeSQLite = "sqlite"
)

// Config selects and parameterizes the storage backend.
type Config struct {
	// Type is the backend type: "memory" or "sqlite".
	Type string `yaml:"type"`
	// Path is the database file used by the sqlite backend. The special
	// value ":memory:" keeps the database in process memory.
	Path string `yaml:"path"`
}

// DefaultConfig returns the in-memory backend configuration.
func DefaultConfig() Config {
	return Config{Type: TypeMemory}
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeMemory
	}
	if c.Type == TypeSQLite && c.Path == "" {
		c.Path = "silt.db"
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch c.Type {
	case TypeMemory:
		return nil
	case TypeSQLite:
		if c.Path == "" {
			return errors.New("storage: sqlite backend requires a path")
		}
		return nil
	default:
		return fmt.Errorf("storage: unknown backend type %q", c.Type)
	}
}
