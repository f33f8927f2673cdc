package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
)

const maxResponseSamples = 1000

// Metrics holds in-process application counters served at /metrics.
// Every recording method also feeds the Prometheus collectors when set.
type Metrics struct {
	requestCount int64
	errorCount   int64
	cacheHits    int64
	cacheMisses  int64

	analysesModel    int64
	analysesFallback int64
	analysesCache    int64

	rateLimitBlocks   int64
	rateLimitFallback int64

	startTime time.Time

	responseTimes   []time.Duration
	responseTimesMu sync.RWMutex

	byStatus   map[int]int64
	byStatusMu sync.RWMutex

	modelFailures   map[string]int64
	modelFailuresMu sync.RWMutex

	prom *Prometheus
}

// NewMetrics creates a new metrics instance. prom may be nil.
func NewMetrics(prom *Prometheus) *Metrics {
	return &Metrics{
		startTime:     time.Now(),
		responseTimes: make([]time.Duration, 0, maxResponseSamples),
		byStatus:      make(map[int]int64),
		modelFailures: make(map[string]int64),
		prom:          prom,
	}
}

// RecordRequest records one finished HTTP request
func (m *Metrics) RecordRequest(method, route string, status int, duration time.Duration) {
	atomic.AddInt64(&m.requestCount, 1)
	if status >= 400 {
		atomic.AddInt64(&m.errorCount, 1)
	}

	m.responseTimesMu.Lock()
	m.responseTimes = append(m.responseTimes, duration)
	if len(m.responseTimes) > maxResponseSamples {
		m.responseTimes = m.responseTimes[1:]
	}
	m.responseTimesMu.Unlock()

	m.byStatusMu.Lock()
	m.byStatus[status]++
	m.byStatusMu.Unlock()

	if m.prom != nil {
		m.prom.observeRequest(method, route, status, duration)
	}
}

// RecordAnalysis implements analysis.Recorder
func (m *Metrics) RecordAnalysis(source analysis.Source, duration time.Duration) {
	switch source {
	case analysis.SourceModel:
		atomic.AddInt64(&m.analysesModel, 1)
	case analysis.SourceFallback:
		atomic.AddInt64(&m.analysesFallback, 1)
	case analysis.SourceCache:
		atomic.AddInt64(&m.analysesCache, 1)
	}
	if m.prom != nil {
		m.prom.analyses.WithLabelValues(string(source)).Inc()
		m.prom.analysisDuration.WithLabelValues(string(source)).Observe(duration.Seconds())
	}
}

// RecordModelFailure implements analysis.Recorder
func (m *Metrics) RecordModelFailure(category string) {
	m.modelFailuresMu.Lock()
	m.modelFailures[category]++
	m.modelFailuresMu.Unlock()

	if m.prom != nil {
		m.prom.modelFailures.WithLabelValues(category).Inc()
	}
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	atomic.AddInt64(&m.cacheHits, 1)
	if m.prom != nil {
		m.prom.cacheLookups.WithLabelValues("hit").Inc()
	}
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	atomic.AddInt64(&m.cacheMisses, 1)
	if m.prom != nil {
		m.prom.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// IncrementRateLimitBlock counts a request rejected by the rate limiter
func (m *Metrics) IncrementRateLimitBlock(endpoint string) {
	atomic.AddInt64(&m.rateLimitBlocks, 1)
	if m.prom != nil {
		m.prom.rateLimitBlocks.WithLabelValues(endpoint).Inc()
	}
}

// IncrementRateLimitFallback counts decisions made by the in-memory limiter because Redis failed
func (m *Metrics) IncrementRateLimitFallback() {
	atomic.AddInt64(&m.rateLimitFallback, 1)
}

// GetPercentileResponseTime calculates percentile response time
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	m.responseTimesMu.RLock()
	times := make([]time.Duration, len(m.responseTimes))
	copy(times, m.responseTimes)
	m.responseTimesMu.RUnlock()

	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	index := int(float64(len(times)-1) * percentile / 100.0)
	return times[index]
}

// Stats is the JSON body of /metrics
type Stats struct {
	UptimeSeconds     float64          `json:"uptime_seconds"`
	StartTime         string           `json:"start_time"`
	TotalRequests     int64            `json:"total_requests"`
	ErrorCount        int64            `json:"error_count"`
	ErrorRatePercent  float64          `json:"error_rate_percent"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	CacheHitRate      float64          `json:"cache_hit_rate_percent"`
	P50ResponseMs     float64          `json:"p50_response_time_ms"`
	P95ResponseMs     float64          `json:"p95_response_time_ms"`
	P99ResponseMs     float64          `json:"p99_response_time_ms"`
	StatusCodes       map[int]int64    `json:"status_code_distribution"`
	Analyses          map[string]int64 `json:"analyses"`
	ModelFailures     map[string]int64 `json:"model_failures"`
	RateLimitBlocks   int64            `json:"rate_limit_blocks"`
	RateLimitFallback int64            `json:"rate_limit_fallback_count"`
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() Stats {
	requests := atomic.LoadInt64(&m.requestCount)
	errs := atomic.LoadInt64(&m.errorCount)
	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)

	s := Stats{
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
		StartTime:         m.startTime.Format(time.RFC3339),
		TotalRequests:     requests,
		ErrorCount:        errs,
		CacheHits:         hits,
		CacheMisses:       misses,
		P50ResponseMs:     float64(m.GetPercentileResponseTime(50)) / float64(time.Millisecond),
		P95ResponseMs:     float64(m.GetPercentileResponseTime(95)) / float64(time.Millisecond),
		P99ResponseMs:     float64(m.GetPercentileResponseTime(99)) / float64(time.Millisecond),
		StatusCodes:       make(map[int]int64),
		ModelFailures:     make(map[string]int64),
		RateLimitBlocks:   atomic.LoadInt64(&m.rateLimitBlocks),
		RateLimitFallback: atomic.LoadInt64(&m.rateLimitFallback),
		Analyses: map[string]int64{
			string(analysis.SourceModel):    atomic.LoadInt64(&m.analysesModel),
			string(analysis.SourceFallback): atomic.LoadInt64(&m.analysesFallback),
			string(analysis.SourceCache):    atomic.LoadInt64(&m.analysesCache),
		},
	}
	if requests > 0 {
		s.ErrorRatePercent = float64(errs) / float64(requests) * 100
	}
	if hits+misses > 0 {
		s.CacheHitRate = float64(hits) / float64(hits+misses) * 100
	}

	m.byStatusMu.RLock()
	for code, n := range m.byStatus {
		s.StatusCodes[code] = n
	}
	m.byStatusMu.RUnlock()

	m.modelFailuresMu.RLock()
	for cat, n := range m.modelFailures {
		s.ModelFailures[cat] = n
	}
	m.modelFailuresMu.RUnlock()

	return s
}

var _ analysis.Recorder = (*Metrics)(nil)
