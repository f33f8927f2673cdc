package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute int // analyze requests per client per minute
	Burst     int // extra requests allowed in a burst; defaults to PerMinute
	// IdleTTL drops in-memory buckets not touched for this long.
	IdleTTL time.Duration
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute: 10,
		Burst:     10,
		IdleTTL:   10 * time.Minute,
	}
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"-"`
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackMu sync.Mutex
	fallback   map[string]*bucket

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter. redisClient and metrics may be nil.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	def := DefaultConfig()
	if config.PerMinute <= 0 {
		config.PerMinute = def.PerMinute
	}
	if config.Burst <= 0 {
		config.Burst = config.PerMinute
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = def.IdleTTL
	}

	rl := &RateLimiter{
		redisClient: redisClient,
		config:      config,
		metrics:     metrics,
		fallback:    make(map[string]*bucket),
		stop:        make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Redis unavailable, using in-memory rate limiting only")
	}

	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) limit() redis_rate.Limit {
	return redis_rate.Limit{Rate: rl.config.PerMinute, Burst: rl.config.Burst, Period: time.Minute}
}

// AllowIP consumes one request for the client key (an IP or an auth subject)
func (rl *RateLimiter) AllowIP(ctx context.Context, client string) (*Result, error) {
	return rl.allowN(ctx, "ratelimit:analyze:"+client, 1)
}

// Status reports the client's quota without consuming it
func (rl *RateLimiter) Status(ctx context.Context, client string) (*Result, error) {
	return rl.allowN(ctx, "ratelimit:analyze:"+client, 0)
}

func (rl *RateLimiter) allowN(ctx context.Context, key string, n int) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, n)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, n), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, n int) (*Result, error) {
	res, err := rl.redisLimiter.AllowN(ctx, key, rl.limit(), n)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    n == 0 || res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

// allowFallback runs a token bucket refilling PerMinute tokens per minute
func (rl *RateLimiter) allowFallback(key string, n int) *Result {
	now := time.Now()

	rl.fallbackMu.Lock()
	b, ok := rl.fallback[key]
	if !ok {
		every := time.Minute / time.Duration(rl.config.PerMinute)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), rl.config.Burst)}
		rl.fallback[key] = b
	}
	b.lastSeen = now
	rl.fallbackMu.Unlock()

	res := &Result{Limit: rl.config.PerMinute}
	if n == 0 {
		res.Allowed = true
	} else if b.limiter.AllowN(now, n) {
		res.Allowed = true
	} else {
		r := b.limiter.ReserveN(now, n)
		if r.OK() {
			res.RetryAfter = r.DelayFrom(now)
			r.CancelAt(now)
		} else {
			res.RetryAfter = time.Minute
		}
	}

	tokens := b.limiter.TokensAt(now)
	if tokens < 0 {
		tokens = 0
	}
	res.Remaining = int(tokens)

	missing := float64(rl.config.Burst) - tokens
	res.ResetAt = now.Add(time.Duration(missing / float64(b.limiter.Limit()) * float64(time.Second)))
	return res
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.IdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

// sweep drops buckets idle for longer than IdleTTL
func (rl *RateLimiter) sweep(now time.Time) int {
	rl.fallbackMu.Lock()
	defer rl.fallbackMu.Unlock()

	removed := 0
	for key, b := range rl.fallback {
		if now.Sub(b.lastSeen) > rl.config.IdleTTL {
			delete(rl.fallback, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Cleaned up fallback rate limiters", "removed", removed, "remaining", len(rl.fallback))
	}
	return removed
}

// Stats summarizes limiter state for the health endpoint
type Stats struct {
	RedisEnabled     bool       `json:"redis_enabled"`
	PerMinute        int        `json:"per_minute"`
	FallbackLimiters int        `json:"fallback_limiters"`
	RedisPool        *PoolStats `json:"redis_pool,omitempty"`
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() Stats {
	rl.fallbackMu.Lock()
	n := len(rl.fallback)
	rl.fallbackMu.Unlock()

	stats := Stats{
		RedisEnabled:     rl.redisClient.IsEnabled(),
		PerMinute:        rl.config.PerMinute,
		FallbackLimiters: n,
	}
	if rl.redisClient.IsEnabled() {
		ps := rl.redisClient.GetPoolStats()
		stats.RedisPool = &ps
	}
	return stats
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
