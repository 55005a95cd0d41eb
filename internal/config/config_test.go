package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "cadence", cfg.Logger.ServiceName)

	assert.NotEmpty(t, cfg.State.Dir)

	assert.Equal(t, "normal", cfg.Engine.DefaultProfile)
	assert.True(t, cfg.Engine.AutoAdjust)
	assert.Equal(t, time.Hour, cfg.Engine.AdaptationInterval)
	assert.Equal(t, 24*time.Hour, cfg.Engine.EvolutionInterval)

	assert.Equal(t, 4.0, cfg.Limiter.MaxSessionHours)
	assert.Equal(t, 30*time.Minute, cfg.Limiter.MinBreakDuration)
	assert.Equal(t, 2*time.Hour, cfg.Limiter.MaxBreakDuration)
	assert.Equal(t, 0.15, cfg.Limiter.BreakProbability)
	assert.Equal(t, 18, cfg.Limiter.PeakHoursStart)
	assert.Equal(t, 23, cfg.Limiter.PeakHoursEnd)
	assert.Equal(t, 0.15, cfg.Limiter.SkipDayProbability)

	assert.Equal(t, time.Minute, cfg.Monitor.Interval)

	require.NoError(t, cfg.Validate(), "shipped defaults must validate")
}

func TestNewFromViper_OverridesApply(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.default_profile", "conservative")
	v.Set("engine.adaptation_interval", "30m")
	v.Set("limiter.max_daily_matches", 5)

	cfg, err := NewFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "conservative", cfg.Engine.DefaultProfile)
	assert.Equal(t, 30*time.Minute, cfg.Engine.AdaptationInterval)
	assert.Equal(t, 5, cfg.Limiter.MaxDailyMatches)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown profile", func(c *Config) { c.Engine.DefaultProfile = "stealth" }},
		{"zero adaptation interval", func(c *Config) { c.Engine.AdaptationInterval = 0 }},
		{"zero session hours", func(c *Config) { c.Limiter.MaxSessionHours = 0 }},
		{"inverted break durations", func(c *Config) {
			c.Limiter.MinBreakDuration = 2 * time.Hour
			c.Limiter.MaxBreakDuration = time.Hour
		}},
		{"break probability above one", func(c *Config) { c.Limiter.BreakProbability = 1.5 }},
		{"peak hour out of range", func(c *Config) { c.Limiter.PeakHoursStart = 25 }},
		{"zero daily cap", func(c *Config) { c.Limiter.MaxDailyMatches = 0 }},
		{"negative skip probability", func(c *Config) { c.Limiter.SkipDayProbability = -0.1 }},
		{"zero monitor interval", func(c *Config) { c.Monitor.Interval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewFromViper_RejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("engine.default_profile", "reckless")

	_, err := NewFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_profile")
}
