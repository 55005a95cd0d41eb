// Package config defines the application configuration, loaded with Viper
// from a YAML file plus CADENCE_* environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	State   StateConfig   `mapstructure:"state" yaml:"state"`
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Limiter LimiterConfig `mapstructure:"limiter" yaml:"limiter"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// StateConfig locates the durable state directory.
type StateConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// EngineConfig configures the adaptation controller.
type EngineConfig struct {
	DefaultProfile     string        `mapstructure:"default_profile" yaml:"default_profile"`
	AutoAdjust         bool          `mapstructure:"auto_adjust" yaml:"auto_adjust"`
	AdaptationInterval time.Duration `mapstructure:"adaptation_interval" yaml:"adaptation_interval"`
	EvolutionInterval  time.Duration `mapstructure:"evolution_interval" yaml:"evolution_interval"`
}

// LimiterConfig configures daily caps, breaks and avoidance.
type LimiterConfig struct {
	MaxSessionHours    float64       `mapstructure:"max_session_hours" yaml:"max_session_hours"`
	MinBreakDuration   time.Duration `mapstructure:"min_break_duration" yaml:"min_break_duration"`
	MaxBreakDuration   time.Duration `mapstructure:"max_break_duration" yaml:"max_break_duration"`
	BreakProbability   float64       `mapstructure:"break_probability" yaml:"break_probability"`
	AvoidPeakHours     bool          `mapstructure:"avoid_peak_hours" yaml:"avoid_peak_hours"`
	PeakHoursStart     int           `mapstructure:"peak_hours_start" yaml:"peak_hours_start"`
	PeakHoursEnd       int           `mapstructure:"peak_hours_end" yaml:"peak_hours_end"`
	MaxDailyMatches    int           `mapstructure:"max_daily_matches" yaml:"max_daily_matches"`
	MaxDailyTrades     int           `mapstructure:"max_daily_trades" yaml:"max_daily_trades"`
	WeekdayVariation   bool          `mapstructure:"weekday_variation" yaml:"weekday_variation"`
	SkipDayProbability float64       `mapstructure:"skip_day_probability" yaml:"skip_day_probability"`
}

// MonitorConfig configures the background adaptation loop.
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cadence")
	v.SetDefault("logger.log_file", "cadence.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- State --
	v.SetDefault("state.dir", defaultStateDir())

	// -- Engine --
	v.SetDefault("engine.default_profile", "normal")
	v.SetDefault("engine.auto_adjust", true)
	v.SetDefault("engine.adaptation_interval", time.Hour)
	v.SetDefault("engine.evolution_interval", 24*time.Hour)

	// -- Limiter --
	v.SetDefault("limiter.max_session_hours", 4.0)
	v.SetDefault("limiter.min_break_duration", 30*time.Minute)
	v.SetDefault("limiter.max_break_duration", 2*time.Hour)
	v.SetDefault("limiter.break_probability", 0.15)
	v.SetDefault("limiter.avoid_peak_hours", true)
	v.SetDefault("limiter.peak_hours_start", 18)
	v.SetDefault("limiter.peak_hours_end", 23)
	v.SetDefault("limiter.max_daily_matches", 20)
	v.SetDefault("limiter.max_daily_trades", 50)
	v.SetDefault("limiter.weekday_variation", true)
	v.SetDefault("limiter.skip_day_probability", 0.15)

	// -- Monitor --
	v.SetDefault("monitor.interval", time.Minute)
}

// defaultStateDir resolves ~/.cadence, falling back to a relative directory
// when the home directory cannot be determined.
func defaultStateDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".cadence"
	}
	return filepath.Join(home, ".cadence")
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; reaching this means a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewFromViper builds and validates a configuration from a viper instance.
func NewFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Engine.DefaultProfile {
	case "conservative", "normal", "aggressive":
	default:
		return fmt.Errorf("engine.default_profile must be one of conservative, normal, aggressive; got %q", c.Engine.DefaultProfile)
	}
	if c.Engine.AdaptationInterval <= 0 {
		return fmt.Errorf("engine.adaptation_interval must be a positive duration")
	}
	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("limiter configuration invalid: %w", err)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be a positive duration")
	}
	return nil
}

// Validate checks the limiter settings.
func (l *LimiterConfig) Validate() error {
	if l.MaxSessionHours <= 0 {
		return fmt.Errorf("max_session_hours must be positive")
	}
	if l.MinBreakDuration <= 0 || l.MaxBreakDuration < l.MinBreakDuration {
		return fmt.Errorf("break durations must satisfy 0 < min <= max")
	}
	if l.BreakProbability < 0 || l.BreakProbability > 1 {
		return fmt.Errorf("break_probability must be between 0.0 and 1.0")
	}
	if l.PeakHoursStart < 0 || l.PeakHoursStart > 23 || l.PeakHoursEnd < 0 || l.PeakHoursEnd > 24 {
		return fmt.Errorf("peak hours must be valid hours of day")
	}
	if l.MaxDailyMatches < 1 || l.MaxDailyTrades < 1 {
		return fmt.Errorf("daily caps must be at least 1")
	}
	if l.SkipDayProbability < 0 || l.SkipDayProbability > 1 {
		return fmt.Errorf("skip_day_probability must be between 0.0 and 1.0")
	}
	return nil
}
