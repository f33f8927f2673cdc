package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
)

const defaultMaxItems = 512

// CacheItem represents a cached analysis with expiration
type CacheItem struct {
	Result    analysis.AnalysisResult
	StoredAt  time.Time
	ExpiresAt time.Time
}

func (c *CacheItem) expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Cache holds model-backed analysis results keyed by video content hash.
// Fallback results are never stored, so a repeat upload gets a fresh model attempt.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]*CacheItem
	ttl      time.Duration
	maxItems int
	now      func() time.Time

	metrics *monitoring.Metrics
	logger  *monitoring.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache creates a cache with the specified TTL. A zero TTL disables
// caching. metrics and logger may be nil.
func NewCache(ttl time.Duration, maxItems int, metrics *monitoring.Metrics, logger *monitoring.Logger) *Cache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	c := &Cache{
		items:    make(map[string]*CacheItem),
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
		metrics:  metrics,
		logger:   logger,
		stop:     make(chan struct{}),
	}

	if ttl > 0 {
		go c.cleanup()
	}
	return c
}

// Key hashes the raw video bytes
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Enabled reports whether results are stored at all
func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

func (c *Cache) cleanup() {
	interval := c.ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *Cache) purgeExpired() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Get returns a cached result marked with the cache source
func (c *Cache) Get(key string) (analysis.AnalysisResult, bool) {
	if !c.Enabled() {
		return analysis.AnalysisResult{}, false
	}

	c.mu.RLock()
	item, exists := c.items[key]
	size := len(c.items)
	c.mu.RUnlock()

	hit := exists && !item.expired(c.now())
	if c.metrics != nil {
		if hit {
			c.metrics.IncrementCacheHit()
		} else {
			c.metrics.IncrementCacheMiss()
		}
	}
	if c.logger != nil {
		c.logger.CacheLogger("get", key, hit, size)
	}
	if !hit {
		return analysis.AnalysisResult{}, false
	}

	result := item.Result
	result.Source = analysis.SourceCache
	return result, true
}

// Set stores a model-backed result. Other sources are ignored.
func (c *Cache) Set(key string, result analysis.AnalysisResult) bool {
	if !c.Enabled() || result.Source != analysis.SourceModel {
		return false
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictOldestLocked()
	}
	c.items[key] = &CacheItem{
		Result:    result,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	if c.logger != nil {
		c.logger.CacheLogger("set", key, false, len(c.items))
	}
	return true
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, item := range c.items {
		if oldestKey == "" || item.StoredAt.Before(oldest) {
			oldestKey, oldest = key, item.StoredAt
		}
	}
	delete(c.items, oldestKey)
}

// Delete removes an item from the cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*CacheItem)
}

// Size returns the number of items in the cache
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats is reported on /health/services
type Stats struct {
	Enabled      bool    `json:"enabled"`
	TotalItems   int     `json:"total_items"`
	ExpiredItems int     `json:"expired_items"`
	MaxItems     int     `json:"max_items"`
	TTLSeconds   float64 `json:"ttl_seconds"`
}

// Stats returns cache statistics
func (c *Cache) Stats() Stats {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Enabled:    c.ttl > 0,
		TotalItems: len(c.items),
		MaxItems:   c.maxItems,
		TTLSeconds: c.ttl.Seconds(),
	}
	for _, item := range c.items {
		if item.expired(now) {
			s.ExpiredItems++
		}
	}
	return s
}

// Close stops the cleanup goroutine
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
