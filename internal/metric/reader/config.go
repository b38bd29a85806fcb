package metricreader

import (
	"errors"
	"time"
)

// Default collection interval for periodic readers (spec §4.2).
const DefaultCollectInterval = 60000 * time.Millisecond

// Default per-collection timeout.
const DefaultCollectTimeout = 30000 * time.Millisecond

// Config configures one registered MetricReader.
type Config struct {
	// CollectInterval is the period between scheduled collections. Zero
	// means the reader is pull-only and never self-schedules (spec §4.2
	// "periodic or on-demand").
	CollectInterval time.Duration

	// CollectTimeout bounds one collection-and-export cycle.
	CollectTimeout time.Duration

	// Name identifies this reader in logs and self-observability.
	Name string

	// AggregationMapping chooses the aggregation module applied to each
	// instrument this reader observes. Defaults to
	// DefaultAggregationMapping.
	AggregationMapping AggregationMapping

	// TemporalityMapping chooses the reported temporality per
	// instrument. Defaults to DefaultTemporalityMapping.
	TemporalityMapping TemporalityMapping
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithCollectInterval sets the periodic collection interval. Pass 0 for
// a pull-only reader.
func WithCollectInterval(d time.Duration) Option {
	return func(c *Config) { c.CollectInterval = d }
}

// WithCollectTimeout bounds one collection cycle.
func WithCollectTimeout(d time.Duration) Option {
	return func(c *Config) { c.CollectTimeout = d }
}

// WithName sets the reader's diagnostic name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithAggregationMapping overrides the reader's instrument-to-aggregation
// policy.
func WithAggregationMapping(m AggregationMapping) Option {
	return func(c *Config) { c.AggregationMapping = m }
}

// WithTemporalityMapping overrides the reader's instrument-to-temporality
// policy.
func WithTemporalityMapping(m TemporalityMapping) Option {
	return func(c *Config) { c.TemporalityMapping = m }
}

// NewConfig builds a Config from defaults plus opts.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		CollectInterval:    DefaultCollectInterval,
		CollectTimeout:     DefaultCollectTimeout,
		Name:               "default",
		AggregationMapping: DefaultAggregationMapping,
		TemporalityMapping: DefaultTemporalityMapping,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks Config invariants. CollectInterval of 0 is valid (it
// means pull-only); a negative value is not.
func (c *Config) Validate() error {
	if c.CollectInterval < 0 {
		return errors.New("reader: collect interval must not be negative")
	}
	if c.CollectTimeout <= 0 {
		return errors.New("reader: collect timeout must be positive")
	}
	return nil
}
