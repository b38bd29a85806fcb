package bsp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxQueueSize, cfg.MaxQueueSize)
	assert.Equal(t, DefaultScheduledDelay, cfg.ScheduledDelay)
	assert.Equal(t, DefaultExportingTimeout, cfg.ExportingTimeout)
	assert.Equal(t, DefaultCheckTableSize, cfg.CheckTableSize)
}

func TestNewConfigWithOptions(t *testing.T) {
	cfg, err := NewConfig(
		WithMaxQueueSize(10),
		WithScheduledDelay(time.Second),
		WithExportingTimeout(2*time.Second),
		WithCheckTableSize(500*time.Millisecond),
		WithName("custom"),
	)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxQueueSize)
	assert.Equal(t, time.Second, cfg.ScheduledDelay)
	assert.Equal(t, 2*time.Second, cfg.ExportingTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.CheckTableSize)
	assert.Equal(t, "custom", cfg.Name)
}

func TestConfigValidateRejectsNonPositiveValues(t *testing.T) {
	_, err := NewConfig(WithMaxQueueSize(0))
	assert.Error(t, err)

	_, err = NewConfig(WithScheduledDelay(0))
	assert.Error(t, err)

	_, err = NewConfig(WithExportingTimeout(-1))
	assert.Error(t, err)

	_, err = NewConfig(WithCheckTableSize(0))
	assert.Error(t, err)
}
