package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Drift:   DriftConfig{Alpha: 0.05, ShareThreshold: 0.5, MinSamples: 30},
		Window:  WindowConfig{Capacity: 1000},
		Retrain: RetrainConfig{Deadline: 30 * time.Minute},
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha zero", func(c *Config) { c.Drift.Alpha = 0 }},
		{"alpha one", func(c *Config) { c.Drift.Alpha = 1 }},
		{"alpha negative", func(c *Config) { c.Drift.Alpha = -0.05 }},
		{"share threshold above one", func(c *Config) { c.Drift.ShareThreshold = 1.5 }},
		{"share threshold negative", func(c *Config) { c.Drift.ShareThreshold = -0.1 }},
		{"min samples zero", func(c *Config) { c.Drift.MinSamples = 0 }},
		{"window capacity zero", func(c *Config) { c.Window.Capacity = 0 }},
		{"negative f1 tolerance", func(c *Config) { c.Retrain.F1Tolerance = -0.01 }},
		{"zero deadline", func(c *Config) { c.Retrain.Deadline = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestValidate_BoundaryValues(t *testing.T) {
	c := validConfig()
	c.Drift.ShareThreshold = 0 // every drifted feature trips the dataset flag
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.Drift.ShareThreshold = 1
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.Drift.MinSamples = 1
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DRIFT_ALPHA", "0.01")
	t.Setenv("WINDOW_CAPACITY", "250")
	t.Setenv("RETRAIN_SYNTHETIC_OVERRIDE", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.01, cfg.Drift.Alpha)
	assert.Equal(t, 250, cfg.Window.Capacity)
	assert.True(t, cfg.Retrain.SyntheticOverride)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_InvalidEnvRejected(t *testing.T) {
	t.Setenv("DRIFT_ALPHA", "1.5")
	_, err := LoadConfig()
	assert.Error(t, err)
}
