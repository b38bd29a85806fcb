package bsp

import (
	"fmt"
	"time"

	"go.opentelemetry.io/collector/pdata/pcommon"
)

// Default configuration values, mirrored from the spec's configuration table.
const (
	DefaultMaxQueueSize      = 2048
	DefaultScheduledDelay    = 5000 * time.Millisecond
	DefaultExportingTimeout  = 300000 * time.Millisecond
	DefaultCheckTableSize    = 1000 * time.Millisecond
)

// Config holds the Batch Span Processor's tunables. Unlike the teacher's
// collector-facing Config, durations here are typed time.Duration values:
// this is SDK-internal wiring, not an externally marshalled collector
// config, so there is no round trip through a string + ParseDuration step.
type Config struct {
	// MaxQueueSize bounds the active buffer's entry count before ingest is disabled.
	MaxQueueSize int

	// ScheduledDelay is the interval between automatic exports.
	ScheduledDelay time.Duration

	// ExportingTimeout is the hard cap on a single export's duration.
	ExportingTimeout time.Duration

	// CheckTableSize is the interval for the size-threshold check.
	CheckTableSize time.Duration

	// Resource is attached to every export. If zero-valued, the processor
	// uses the resource passed to NewProcessor.
	Resource pcommon.Resource

	// Name identifies this processor for logging/addressing purposes.
	Name string
}

// Option configures a Config at construction time.
type Option func(*Config)

// WithMaxQueueSize overrides the active buffer's entry-count bound.
func WithMaxQueueSize(n int) Option {
	return func(c *Config) { c.MaxQueueSize = n }
}

// WithScheduledDelay overrides the automatic export interval.
func WithScheduledDelay(d time.Duration) Option {
	return func(c *Config) { c.ScheduledDelay = d }
}

// WithExportingTimeout overrides the per-export hard timeout.
func WithExportingTimeout(d time.Duration) Option {
	return func(c *Config) { c.ExportingTimeout = d }
}

// WithCheckTableSize overrides the size-check interval.
func WithCheckTableSize(d time.Duration) Option {
	return func(c *Config) { c.CheckTableSize = d }
}

// WithResource attaches a fixed resource to every export.
func WithResource(r pcommon.Resource) Option {
	return func(c *Config) { c.Resource = r }
}

// WithName sets the processor's identifier.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// NewConfig builds a Config from defaults plus the supplied options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		MaxQueueSize:     DefaultMaxQueueSize,
		ScheduledDelay:   DefaultScheduledDelay,
		ExportingTimeout: DefaultExportingTimeout,
		CheckTableSize:   DefaultCheckTableSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obviously unusable values.
func (c *Config) Validate() error {
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("max_queue_size must be greater than 0, got %d", c.MaxQueueSize)
	}
	if c.ScheduledDelay <= 0 {
		return fmt.Errorf("scheduled_delay must be positive, got %s", c.ScheduledDelay)
	}
	if c.ExportingTimeout <= 0 {
		return fmt.Errorf("exporting_timeout must be positive, got %s", c.ExportingTimeout)
	}
	if c.CheckTableSize <= 0 {
		return fmt.Errorf("check_table_size must be positive, got %s", c.CheckTableSize)
	}
	return nil
}
