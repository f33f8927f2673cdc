package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
)

func modelResult(p, c, e int) analysis.AnalysisResult {
	r := analysis.Aggregate(p, c, e)
	r.Source = analysis.SourceModel
	return r
}

func newTestCache(t *testing.T, ttl time.Duration, maxItems int, metrics *monitoring.Metrics) *Cache {
	t.Helper()
	c := NewCache(ttl, maxItems, metrics, nil)
	t.Cleanup(c.Close)
	return c
}

func TestKey(t *testing.T) {
	a := Key([]byte("video-a"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key([]byte("video-a")))
	assert.NotEqual(t, a, Key([]byte("video-b")))
}

func TestCache_GetSet(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	c := newTestCache(t, time.Hour, 0, metrics)
	key := Key([]byte("talk.webm"))

	_, ok := c.Get(key)
	assert.False(t, ok)

	stored := modelResult(88, 74, 65)
	require.True(t, c.Set(key, stored))

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, analysis.SourceCache, got.Source)
	assert.Equal(t, stored.Metrics, got.Metrics)
	assert.Equal(t, stored.Sections, got.Sections)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
}

func TestCache_SkipsNonModelResults(t *testing.T) {
	c := newTestCache(t, time.Hour, 0, nil)

	fallback := analysis.FallbackResult(analysis.NewRandomScoreSource(1))
	assert.False(t, c.Set("k", fallback))

	cached := modelResult(80, 80, 80)
	cached.Source = analysis.SourceCache
	assert.False(t, c.Set("k", cached))

	assert.Equal(t, 0, c.Size())
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t, time.Minute, 0, nil)
	base := time.Now()
	c.now = func() time.Time { return base }

	require.True(t, c.Set("k", modelResult(90, 90, 90)))

	c.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().ExpiredItems)

	assert.Equal(t, 1, c.purgeExpired())
	assert.Equal(t, 0, c.Size())
}

func TestCache_EvictsOldest(t *testing.T) {
	c := newTestCache(t, time.Hour, 2, nil)
	base := time.Now()

	for i, key := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Second)
		c.now = func() time.Time { return at }
		require.True(t, c.Set(key, modelResult(80, 80, 80)))
	}

	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCache_Disabled(t *testing.T) {
	c := newTestCache(t, 0, 0, nil)

	assert.False(t, c.Enabled())
	assert.False(t, c.Set("k", modelResult(90, 90, 90)))
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.False(t, c.Stats().Enabled)

	var nilCache *Cache
	assert.False(t, nilCache.Enabled())
}
