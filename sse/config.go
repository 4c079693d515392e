package sse

import (
	"fmt"
	"time"
)

// Config holds the connection-layer tuning knobs. All durations are
// deployment configuration; the defaults below are starting points,
// not contract.
type Config struct {
	// CacheCapacity bounds the per-connection retry cache (FIFO,
	// oldest evicted first).
	CacheCapacity int `yaml:"cache_capacity" mapstructure:"cache_capacity"`

	// CacheTTL is how long an unacknowledged frame stays retryable.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// MaxRetries bounds re-emission attempts per cached frame.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`

	// SweepInterval is the period of the hub's liveness/retry sweep.
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`

	// DisconnectTimeout is how long a connection may go without a ping
	// before the sweep evicts it.
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout" mapstructure:"disconnect_timeout"`

	// StateMinInterval is the minimum spacing between client state
	// reports on one connection.
	StateMinInterval time.Duration `yaml:"state_min_interval" mapstructure:"state_min_interval"`

	// ChannelBuffer is the per-connection outbound frame buffer; a full
	// buffer is the back-pressure signal that fails a send.
	ChannelBuffer int `yaml:"channel_buffer" mapstructure:"channel_buffer"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 50
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Second
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = 35 * time.Second
	}
	if c.StateMinInterval <= 0 {
		c.StateMinInterval = 5 * time.Second
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = 256
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("sse.cache_capacity must be > 0")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("sse.cache_ttl must be > 0")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("sse.max_retries must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sse.sweep_interval must be > 0")
	}
	if c.DisconnectTimeout <= c.SweepInterval {
		return fmt.Errorf("sse.disconnect_timeout (%s) must exceed sse.sweep_interval (%s)",
			c.DisconnectTimeout, c.SweepInterval)
	}
	if c.ChannelBuffer <= 0 {
		return fmt.Errorf("sse.channel_buffer must be > 0")
	}
	return nil
}
