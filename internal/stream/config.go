package stream

import (
	"fmt"
	"time"
)

// Config holds the tuning knobs of the streaming subsystem.
type Config struct {
	// BufferCapacity is the replay buffer size in messages.
	BufferCapacity int `yaml:"buffer_capacity"`
	// ResumeTTL is how long an issued resume token stays valid.
	ResumeTTL time.Duration `yaml:"resume_ttl"`
	// MetricsInterval drives the synthetic telemetry tick.
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	// DiffInterval drives the model re-fetch and diff tick.
	DiffInterval time.Duration `yaml:"diff_interval"`
	// EventFilter is an optional CEL expression over {type, entityId}
	// applied to every event before it is sequenced and broadcast.
	EventFilter string `yaml:"event_filter"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:  1000,
		ResumeTTL:       5 * time.Minute,
		MetricsInterval: 5 * time.Second,
		DiffInterval:    30 * time.Second,
	}
}

// ApplyDefaults fills in missing values with defaults.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.BufferCapacity == 0 {
		c.BufferCapacity = def.BufferCapacity
	}
	if c.ResumeTTL == 0 {
		c.ResumeTTL = def.ResumeTTL
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = def.MetricsInterval
	}
	if c.DiffInterval == 0 {
		c.DiffInterval = def.DiffInterval
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.BufferCapacity < 1 {
		return fmt.Errorf("stream: buffer_capacity must be positive, got %d", c.BufferCapacity)
	}
	if c.ResumeTTL <= 0 {
		return fmt.Errorf("stream: resume_ttl must be positive, got %s", c.ResumeTTL)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("stream: metrics_interval must be positive, got %s", c.MetricsInterval)
	}
	if c.DiffInterval <= 0 {
		return fmt.Errorf("stream: diff_interval must be positive, got %s", c.DiffInterval)
	}
	return nil
}
