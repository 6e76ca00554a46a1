// Package config loads and validates vectorizer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Gate      GateConfig        `mapstructure:"gate"`
	Limits    LimitsConfig      `mapstructure:"limits"`
	Prep      PreprocessConfig  `mapstructure:"preprocess"`
	Trace     TraceConfig       `mapstructure:"trace"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Presets   map[string]Preset `mapstructure:"presets"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// GateConfig governs the admission gate.
type GateConfig struct {
	// MaxConcurrency of 0 derives the limit from the CPU count, clamped
	// to [1, 2].
	MaxConcurrency int `mapstructure:"max_concurrency"`
	QueueMax       int `mapstructure:"queue_max"`
	JobEstimateMs  int `mapstructure:"job_estimate_ms"`
	RetryMinMs     int `mapstructure:"retry_min_ms"`
	RetryMaxMs     int `mapstructure:"retry_max_ms"`
}

// LimitsConfig bounds accepted uploads.
type LimitsConfig struct {
	MaxUploadMB   int64   `mapstructure:"max_upload_mb"`
	OverheadKB    int64   `mapstructure:"overhead_kb"`
	MaxSidePx     int     `mapstructure:"max_side_px"`
	MaxMegapixels float64 `mapstructure:"max_megapixels"`
}

// PreprocessConfig tunes bitmap normalization.
type PreprocessConfig struct {
	MaxDimension int     `mapstructure:"max_dimension"`
	Gamma        float64 `mapstructure:"gamma"`
}

// TraceConfig holds the tracer parameter defaults applied when the request
// leaves a field unset.
type TraceConfig struct {
	Threshold    int     `mapstructure:"threshold"`
	TurdSize     int     `mapstructure:"turd_size"`
	OptTolerance float64 `mapstructure:"opt_tolerance"`
	TurnPolicy   string  `mapstructure:"turn_policy"`
	LineColor    string  `mapstructure:"line_color"`
	BGColor      string  `mapstructure:"bg_color"`
}

// RateLimitConfig controls the per-client request limiter.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// Preset is a named bundle of tracer settings selectable per request.
type Preset struct {
	Threshold    int     `mapstructure:"threshold"`
	TurdSize     int     `mapstructure:"turd_size"`
	OptTolerance float64 `mapstructure:"opt_tolerance"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VECTORIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("gate.max_concurrency", 0)
	v.SetDefault("gate.queue_max", 8)
	v.SetDefault("gate.job_estimate_ms", 3000)
	v.SetDefault("gate.retry_min_ms", 1000)
	v.SetDefault("gate.retry_max_ms", 15000)
	v.SetDefault("limits.max_upload_mb", 30)
	v.SetDefault("limits.overhead_kb", 1024)
	v.SetDefault("limits.max_side_px", 8000)
	v.SetDefault("limits.max_megapixels", 30)
	v.SetDefault("preprocess.max_dimension", 4000)
	v.SetDefault("preprocess.gamma", 1.0)
	v.SetDefault("trace.threshold", 210)
	v.SetDefault("trace.turd_size", 2)
	v.SetDefault("trace.opt_tolerance", 0.28)
	v.SetDefault("trace.turn_policy", "minority")
	v.SetDefault("trace.line_color", "#000000")
	v.SetDefault("trace.bg_color", "#ffffff")
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 1)
	v.SetDefault("ratelimit.burst", 3)
	v.SetDefault("presets.logo.threshold", 210)
	v.SetDefault("presets.logo.turd_size", 2)
	v.SetDefault("presets.logo.opt_tolerance", 0.28)
	v.SetDefault("presets.sticker.threshold", 224)
	v.SetDefault("presets.sticker.turd_size", 3)
	v.SetDefault("presets.sticker.opt_tolerance", 0.35)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Gate.MaxConcurrency < 0 {
		return fmt.Errorf("gate.max_concurrency must be >= 0")
	}
	if c.Gate.QueueMax <= 0 {
		return fmt.Errorf("gate.queue_max must be > 0")
	}
	if c.Limits.MaxUploadMB <= 0 {
		return fmt.Errorf("limits.max_upload_mb must be > 0")
	}
	if c.Limits.MaxSidePx <= 0 {
		return fmt.Errorf("limits.max_side_px must be > 0")
	}
	if c.Trace.Threshold < 0 || c.Trace.Threshold > 255 {
		return fmt.Errorf("trace.threshold must be in [0, 255]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

// JobEstimate converts the per-wave retry heuristic into a duration.
func (c Config) JobEstimate() time.Duration {
	return time.Duration(c.Gate.JobEstimateMs) * time.Millisecond
}
