package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/posture-peek/internal/config"
	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
)

// isolate clears every variable Load reads so the host environment cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PEEK_") {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}
	t.Setenv("OPENAI_API_KEY", "")
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(50<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, "low", cfg.Model.Detail)
	assert.Equal(t, 3, cfg.Analysis.Frames)
	assert.Equal(t, 45*time.Second, cfg.Analysis.ModelTimeout)
	assert.Equal(t, 10, cfg.RateLimit.PerMinute)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Database.Enabled)
	assert.False(t, cfg.ModelEnabled())
	assert.False(t, cfg.AuthEnabled())
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("PEEK_SERVER__PORT", "9000")
	t.Setenv("PEEK_SERVER__MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("PEEK_SERVER__ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("PEEK_SERVER__TRUSTED_PROXIES", "10.0.0.1,10.0.0.2,10.0.0.3")
	t.Setenv("PEEK_ANALYSIS__MODEL_TIMEOUT", "10s")
	t.Setenv("PEEK_ANALYSIS__SEED", "42")
	t.Setenv("PEEK_RATELIMIT__REDIS_ADDR", "localhost:6379")
	t.Setenv("PEEK_AUTH__JWT_SECRET", "s3cret")
	t.Setenv("PEEK_DATABASE__ENABLED", "false")
	t.Setenv("PEEK_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, cfg.Server.TrustedProxies)
	assert.Equal(t, 10*time.Second, cfg.Analysis.ModelTimeout)
	assert.Equal(t, int64(42), cfg.Analysis.Seed)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.RedisAddr)
	assert.True(t, cfg.AuthEnabled())
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "debug", cfg.LogLevel)
	// untouched sections keep defaults
	assert.Equal(t, 3, cfg.Analysis.Frames)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	tests := []struct {
		name    string
		peekKey string
		openai  string
		want    string
	}{
		{"openai key only", "", "sk-openai", "sk-openai"},
		{"peek key wins", "sk-peek", "sk-openai", "sk-peek"},
		{"neither", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			if tt.peekKey != "" {
				t.Setenv("PEEK_MODEL__API_KEY", tt.peekKey)
			}
			t.Setenv("OPENAI_API_KEY", tt.openai)

			cfg, err := config.Load()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Model.APIKey)
		})
	}
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "peek.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: warn
server:
  port: "7000"
  request_timeout: 2m
analysis:
  frames: 5
  max_concurrency: 2
cache:
  ttl: 0s
`), 0o600))
	t.Setenv("PEEK_CONFIG", path)
	t.Setenv("PEEK_ANALYSIS__FRAMES", "4")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Server.RequestTimeout)
	assert.Equal(t, 4, cfg.Analysis.Frames, "env overrides file")
	assert.Equal(t, 2, cfg.Analysis.MaxConcurrency)
	assert.Equal(t, time.Duration(0), cfg.Cache.TTL)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		isolate(t)
		t.Setenv("PEEK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := config.Load()
		assert.ErrorIs(t, err, config.ErrLoadConfig)
	})

	t.Run("invalid values", func(t *testing.T) {
		isolate(t)
		t.Setenv("PEEK_ANALYSIS__FRAMES", "0")
		t.Setenv("PEEK_MODEL__DETAIL", "ultra")

		_, err := config.Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)

		var appErr *apperrors.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, apperrors.CategoryConfiguration, appErr.Category)
	})
}
