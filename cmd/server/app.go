package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/adapters"
	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/cache"
	"github.com/ZanzyTHEbar/posture-peek/internal/config"
	"github.com/ZanzyTHEbar/posture-peek/internal/database"
	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
	"github.com/ZanzyTHEbar/posture-peek/internal/frames"
	"github.com/ZanzyTHEbar/posture-peek/internal/middleware"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-peek/internal/ratelimit"
	"github.com/ZanzyTHEbar/posture-peek/internal/resilience"
	"github.com/ZanzyTHEbar/posture-peek/internal/security"
)

const version = "1.0.0"

// server holds every dependency the HTTP handlers use. Optional
// components (vision, runs, db, redis) are nil when disabled.
type server struct {
	cfg *config.Config

	analyzer *analysis.Analyzer
	cache    *cache.Cache
	limiter  *ratelimit.RateLimiter
	auth     *security.Authenticator
	security *security.SecurityMiddleware
	runs     *database.RunLog
	gzip     *middleware.CompressionMiddleware

	metrics     *monitoring.Metrics
	prom        *monitoring.Prometheus
	logger      *monitoring.Logger
	degradation *resilience.DegradationManager
	breakers    *resilience.CircuitBreakerRegistry

	vision *adapters.VisionAdapter
	db     *database.DB
	redis  *ratelimit.RedisClient
}

// newServer wires the service from configuration. Components that can
// run degraded (model, ffmpeg, redis) log a warning instead of failing.
func newServer(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*server, error) {
	prom := monitoring.NewPrometheus()
	metrics := monitoring.NewMetrics(prom)

	s := &server{
		cfg:         cfg,
		metrics:     metrics,
		prom:        prom,
		logger:      logger,
		degradation: resilience.NewDegradationManager(resilience.DefaultDegradationConfig()),
		breakers:    resilience.NewCircuitBreakerRegistry(),
		auth:        security.NewAuthenticator(cfg.Auth.JWTSecret),
		security: security.NewSecurityMiddleware(security.SecurityConfig{
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			TrustedProxies: cfg.Server.TrustedProxies,
			RequestTimeout: cfg.Server.RequestTimeout,
			EnableHSTS:     cfg.Server.EnableHSTS,
		}),
		cache: cache.NewCache(cfg.Cache.TTL, 0, metrics, logger),
	}
	if cfg.Server.Compression {
		s.gzip = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())
	}

	var sampler analysis.FrameSampler
	var classifier analysis.FrameClassifier
	if cfg.ModelEnabled() {
		vision, err := adapters.NewVisionAdapter(adapters.VisionConfig{
			BaseURL:  cfg.Model.BaseURL,
			APIKey:   cfg.Model.APIKey,
			Model:    cfg.Model.Name,
			Detail:   cfg.Model.Detail,
			Timeout:  cfg.Model.Timeout,
			Breaker:  adapters.DefaultVisionConfig().Breaker,
			Breakers: s.breakers,
		}, s.degradation, logger)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("create vision adapter: %w", err)
		}
		s.vision = vision
		classifier = vision

		ffmpeg, err := frames.NewFFmpegSampler(frames.Config{
			Count: cfg.Analysis.Frames,
			Width: cfg.Analysis.FrameWidth,
		}, logger.Logger)
		if err != nil {
			logger.Warn("Frame sampling unavailable, analyses will use sample scores", "error", err)
		} else {
			sampler = ffmpeg
		}
		s.degradation.RegisterService(adapters.VisionServiceName, vision.Ping)
	} else {
		logger.Warn("No vision model API key configured, analyses will use sample scores")
		s.degradation.RegisterService(adapters.VisionServiceName, nil)
	}

	opts := []analysis.Option{
		analysis.WithRecorder(metrics),
		analysis.WithLogger(logger.Logger),
		analysis.WithModelTimeout(cfg.Analysis.ModelTimeout),
		analysis.WithMaxConcurrency(cfg.Analysis.MaxConcurrency),
	}
	if cfg.Analysis.Seed != 0 {
		opts = append(opts, analysis.WithScoreSource(analysis.NewRandomScoreSource(cfg.Analysis.Seed)))
	}
	s.analyzer = analysis.NewAnalyzer(sampler, classifier, opts...)

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
	if err != nil {
		logger.Warn("Redis unavailable, using in-memory rate limiting", "error", err)
	}
	s.redis = redisClient
	s.limiter = ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		PerMinute: cfg.RateLimit.PerMinute,
		Burst:     cfg.RateLimit.PerMinute,
		IdleTTL:   10 * time.Minute,
	}, metrics)

	if cfg.Database.Enabled {
		db, err := database.NewDB(ctx, cfg.Database.DataDir)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open run log: %w", err)
		}
		s.db = db
		s.runs = database.NewRunLog(database.NewRepository(db), logger.Logger)
	}

	logger.SystemLogger("server_configured", fmt.Sprintf(
		"model=%t frames=%t redis=%t auth=%t runlog=%t cache_ttl=%s",
		s.vision != nil, sampler != nil, redisClient.IsEnabled(), s.auth != nil, s.runs != nil, cfg.Cache.TTL,
	))
	return s, nil
}

// close releases every resource newServer acquired.
func (s *server) close() {
	s.cache.Close()
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.redis != nil {
		apperrors.SafeClose(s.redis, "redis")
	}
	if s.vision != nil {
		apperrors.SafeClose(s.vision, "vision adapter")
	}
	if s.db != nil {
		apperrors.SafeClose(s.db, "database")
	}
	slog.Info("Server resources released")
}
