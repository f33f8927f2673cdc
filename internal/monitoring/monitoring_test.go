package monitoring

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMetrics_RecordAnalysis(t *testing.T) {
	prom := NewPrometheus()
	m := NewMetrics(prom)

	m.RecordAnalysis(analysis.SourceModel, time.Second)
	m.RecordAnalysis(analysis.SourceFallback, time.Millisecond)
	m.RecordAnalysis(analysis.SourceFallback, time.Millisecond)
	m.RecordAnalysis(analysis.SourceCache, 0)
	m.RecordModelFailure("timeout")
	m.RecordModelFailure("timeout")
	m.RecordModelFailure("configuration")

	stats := m.GetStats()
	assert.Equal(t, map[string]int64{"model": 1, "fallback": 2, "cache": 1}, stats.Analyses)
	assert.Equal(t, map[string]int64{"timeout": 2, "configuration": 1}, stats.ModelFailures)

	assert.Equal(t, 2.0, testutil.ToFloat64(prom.analyses.WithLabelValues("fallback")))
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.modelFailures.WithLabelValues("timeout")))
}

func TestMetrics_Requests(t *testing.T) {
	m := NewMetrics(nil)

	durations := []time.Duration{10, 20, 30, 40, 50}
	for i, d := range durations {
		status := http.StatusOK
		if i == 4 {
			status = http.StatusInternalServerError
		}
		m.RecordRequest(http.MethodGet, "/health", status, d*time.Millisecond)
	}
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementRateLimitBlock("/api/analyze")

	stats := m.GetStats()
	assert.Equal(t, int64(5), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.ErrorCount)
	assert.InDelta(t, 20.0, stats.ErrorRatePercent, 0.001)
	assert.InDelta(t, 50.0, stats.CacheHitRate, 0.001)
	assert.Equal(t, int64(4), stats.StatusCodes[http.StatusOK])
	assert.Equal(t, int64(1), stats.RateLimitBlocks)
	assert.Equal(t, 30*time.Millisecond, m.GetPercentileResponseTime(50))
	assert.Equal(t, 50*time.Millisecond, m.GetPercentileResponseTime(100))
}

func TestPrometheus_Handler(t *testing.T) {
	prom := NewPrometheus()
	m := NewMetrics(prom)
	m.RecordRequest(http.MethodPost, "/api/analyze", http.StatusOK, time.Second)
	m.RecordAnalysis(analysis.SourceModel, time.Second)

	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `posture_peek_api_http_requests_total{method="POST",route="/api/analyze",status="200"} 1`)
	assert.Contains(t, body, `posture_peek_analysis_results_total{source="model"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMonitoringMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, slog.LevelInfo)
	m := NewMetrics(nil)

	r := gin.New()
	r.Use(RequestIDMiddleware(), MonitoringMiddleware(m, logger))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	stats := m.GetStats()
	assert.Equal(t, int64(2), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.StatusCodes[http.StatusNotFound])

	line := strings.SplitN(buf.String(), "\n", 2)[0]
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "HTTP Request", entry["msg"])
	assert.Equal(t, "/health", entry["path"])
	assert.NotEmpty(t, entry["request_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestRequestIDMiddleware(t *testing.T) {
	existing := uuid.NewString()
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{"generates when absent", "", false},
		{"keeps valid inbound id", existing, true},
		{"replaces malformed id", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			r := gin.New()
			r.Use(RequestIDMiddleware())
			r.GET("/", func(c *gin.Context) {
				seen = RequestIDFromContext(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.inbound != "" {
				req.Header.Set(RequestIDHeader, tt.inbound)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get(RequestIDHeader)
			assert.Equal(t, got, seen)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
			if tt.keep {
				assert.Equal(t, tt.inbound, got)
			}
		})
	}
}

func TestSecurityMonitoringMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		userAgent string
		flagged   bool
	}{
		{"clean request", "/health", "curl/8.0", false},
		{"sql injection", "/api/runs?limit=1';--", "curl/8.0", true},
		{"scanner", "/health", "sqlmap/1.7", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := gin.New()
			r.Use(SecurityMonitoringMiddleware(NewLoggerTo(&buf, slog.LevelInfo)))
			r.GET("/*any", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("User-Agent", tt.userAgent)
			r.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.flagged, strings.Contains(buf.String(), "suspicious_activity_detected"))
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, slog.LevelInfo)
	l.Debug("hidden")
	l.SetLevel(slog.LevelDebug)
	l.Debug("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
