package ratelimit

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
	"github.com/ZanzyTHEbar/posture-peek/internal/security"
)

// clientKey prefers the authenticated subject over the client IP
func clientKey(c *gin.Context) string {
	if v, ok := c.Get(security.SubjectKey); ok {
		if s, ok := v.(string); ok && s != "" {
			return "sub:" + s
		}
	}
	return "ip:" + c.ClientIP()
}

func setHeaders(c *gin.Context, result *Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// AnalyzeRateLimitMiddleware limits analyze requests per client per minute
func (rl *RateLimiter) AnalyzeRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)

		result, err := rl.AllowIP(c.Request.Context(), key)
		if err != nil {
			// never block on limiter failure
			slog.Error("Rate limit check failed", "client", key, "error", err)
			c.Next()
			return
		}

		setHeaders(c, result)

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitBlock(c.FullPath())
			}

			retry := int(math.Ceil(result.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			apperrors.Abort(c, apperrors.NewRateLimitError(strconv.Itoa(retry)+"s"))
			return
		}

		c.Next()
	}
}
