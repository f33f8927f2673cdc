// Package config defines service configuration and its loading from
// defaults, an optional YAML file and PEEK_ environment variables.
package config

import (
	"fmt"
	"time"

	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Model     ModelConfig     `koanf:"model"`
	Analysis  AnalysisConfig  `koanf:"analysis"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Auth      AuthConfig      `koanf:"auth"`
	Cache     CacheConfig     `koanf:"cache"`
	Database  DatabaseConfig  `koanf:"database"`
}

// ServerConfig configures the HTTP listener and request guards.
type ServerConfig struct {
	Port           string        `koanf:"port"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	TrustedProxies []string      `koanf:"trusted_proxies"`
	EnableHSTS     bool          `koanf:"enable_hsts"`
	// Compression gzips JSON responses of at least 1KB for clients that accept it.
	Compression bool `koanf:"compression"`
	// EnableProfiling mounts net/http/pprof under /debug/pprof.
	EnableProfiling bool `koanf:"enable_profiling"`
}

// ModelConfig points at an OpenAI-compatible vision endpoint.
// An empty APIKey disables the model and every analysis uses fallback scores.
type ModelConfig struct {
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Name    string        `koanf:"name"`
	Detail  string        `koanf:"detail"`
	Timeout time.Duration `koanf:"timeout"`
}

// AnalysisConfig tunes frame sampling and the model fan-out.
type AnalysisConfig struct {
	Frames         int           `koanf:"frames"`
	FrameWidth     int           `koanf:"frame_width"`
	MaxConcurrency int           `koanf:"max_concurrency"`
	ModelTimeout   time.Duration `koanf:"model_timeout"`
	// Seed fixes fallback scores when non-zero.
	Seed int64 `koanf:"seed"`
}

// RateLimitConfig controls per-IP limits on the analyze endpoint.
// Without RedisAddr only the in-memory limiter is used.
type RateLimitConfig struct {
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	PerMinute     int    `koanf:"per_minute"`
}

// AuthConfig enables bearer-token auth on the analyze endpoint when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl"`
}

type DatabaseConfig struct {
	DataDir string `koanf:"data_dir"`
	Enabled bool   `koanf:"enabled"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:           "8080",
			MaxUploadBytes: 50 << 20,
			RequestTimeout: 90 * time.Second,
			AllowedOrigins: []string{"*"},
			Compression:    true,
		},
		Model: ModelConfig{
			BaseURL: "https://api.openai.com/v1",
			Name:    "gpt-4o-mini",
			Detail:  "low",
			Timeout: 30 * time.Second,
		},
		Analysis: AnalysisConfig{
			Frames:         3,
			FrameWidth:     512,
			MaxConcurrency: 3,
			ModelTimeout:   45 * time.Second,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 10,
		},
		Cache: CacheConfig{
			TTL: time.Hour,
		},
		Database: DatabaseConfig{
			DataDir: "./data",
			Enabled: true,
		},
	}
}

// ModelEnabled reports whether a vision model is configured.
func (c *Config) ModelEnabled() bool {
	return c.Model.APIKey != ""
}

// AuthEnabled reports whether the analyze endpoint requires a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

// Validate checks ranges that would otherwise fail at request time.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Server.Port != "", "server.port must not be empty")
	check(c.Server.MaxUploadBytes > 0, "server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	check(c.Server.RequestTimeout > 0, "server.request_timeout must be positive")
	check(c.Analysis.Frames > 0, "analysis.frames must be positive, got %d", c.Analysis.Frames)
	check(c.Analysis.FrameWidth >= 64, "analysis.frame_width must be at least 64, got %d", c.Analysis.FrameWidth)
	check(c.Analysis.MaxConcurrency > 0, "analysis.max_concurrency must be positive, got %d", c.Analysis.MaxConcurrency)
	check(c.Analysis.ModelTimeout > 0, "analysis.model_timeout must be positive")
	check(c.RateLimit.PerMinute > 0, "ratelimit.per_minute must be positive, got %d", c.RateLimit.PerMinute)
	check(c.Cache.TTL >= 0, "cache.ttl must not be negative")
	check(c.Model.Detail == "low" || c.Model.Detail == "high" || c.Model.Detail == "auto",
		"model.detail must be low, high or auto, got %q", c.Model.Detail)

	if len(problems) == 0 {
		return nil
	}
	return apperrors.NewConfigurationError("invalid configuration", fmt.Errorf("%w: %v", ErrInvalidConfig, problems))
}
