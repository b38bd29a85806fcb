package metricreader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertored/otel-pipeline-core/internal/exporter"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultCollectInterval, cfg.CollectInterval)
	assert.Equal(t, DefaultCollectTimeout, cfg.CollectTimeout)
	assert.Equal(t, "default", cfg.Name)
	assert.NotNil(t, cfg.AggregationMapping)
	assert.NotNil(t, cfg.TemporalityMapping)
}

func TestNewConfigWithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithCollectInterval(5*time.Second),
		WithCollectTimeout(time.Second),
		WithName("custom"),
	)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.CollectInterval)
	assert.Equal(t, time.Second, cfg.CollectTimeout)
	assert.Equal(t, "custom", cfg.Name)
}

func TestNewConfigWithZeroCollectIntervalIsPullOnlyAndValid(t *testing.T) {
	cfg, err := NewConfig(WithCollectInterval(0))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.CollectInterval)
}

func TestConfigValidateRejectsNegativeIntervalAndNonPositiveTimeout(t *testing.T) {
	_, err := NewConfig(WithCollectInterval(-time.Second))
	assert.Error(t, err)

	_, err = NewConfig(WithCollectTimeout(0))
	assert.Error(t, err)

	_, err = NewConfig(WithCollectTimeout(-time.Second))
	assert.Error(t, err)
}

func TestWithAggregationAndTemporalityMappingOverrideDefaults(t *testing.T) {
	customAgg := func(Instrument, exporter.Temporality) Aggregation { return Drop }
	customTemp := func(Instrument) exporter.Temporality { return exporter.Delta }
	cfg, err := NewConfig(WithAggregationMapping(customAgg), WithTemporalityMapping(customTemp))
	require.NoError(t, err)
	assert.True(t, IsDrop(cfg.AggregationMapping(Instrument{Kind: KindCounter}, exporter.Cumulative)))
	assert.Equal(t, exporter.Delta, cfg.TemporalityMapping(Instrument{Kind: KindCounter}))
}
