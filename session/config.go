package session

import (
	"fmt"
	"time"
)

// Config holds the session-layer tuning knobs.
type Config struct {
	// DefaultLifetime is applied to managers started without an explicit
	// lifetime. A manager never outlives its lifetime.
	DefaultLifetime time.Duration `yaml:"default_lifetime" mapstructure:"default_lifetime"`

	// MaxLifetime caps caller-specified lifetimes. Zero means uncapped.
	MaxLifetime time.Duration `yaml:"max_lifetime" mapstructure:"max_lifetime"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultLifetime <= 0 {
		c.DefaultLifetime = time.Hour
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DefaultLifetime <= 0 {
		return fmt.Errorf("session.default_lifetime must be > 0")
	}
	if c.MaxLifetime > 0 && c.MaxLifetime < c.DefaultLifetime {
		return fmt.Errorf("session.max_lifetime (%s) must be >= session.default_lifetime (%s)",
			c.MaxLifetime, c.DefaultLifetime)
	}
	return nil
}
