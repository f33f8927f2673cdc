// Package middleware holds response-shaping gin middleware shared by the API.
package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // smallest first write that gets compressed, in bytes
	CompressionLevel int      // gzip level, 1-9
	ContentTypes     []string // media type prefixes eligible for compression
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
			"text/html",
			"text/css",
			"application/javascript",
		},
	}
}

// CompressionMiddleware gzips eligible responses for clients that accept it.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns the gin middleware.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead || !acceptsGzip(c.Request) {
			c.Next()
			return
		}

		w := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = w
		defer func() {
			w.finish()
			c.Writer = w.ResponseWriter
		}()

		c.Next()
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() CompressionSnapshot {
	return cm.stats.snapshot()
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(strings.TrimSpace(name), "gzip") {
			return strings.ReplaceAll(params, " ", "") != "q=0"
		}
	}
	return false
}

func (cm *CompressionMiddleware) shouldCompress(h http.Header, size int) bool {
	if size < cm.config.MinSize || h.Get("Content-Encoding") != "" {
		return false
	}
	contentType := h.Get("Content-Type")
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// gzipResponseWriter decides on the first write whether the body is compressed.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm      *CompressionMiddleware
	gz      *gzip.Writer
	decided bool
	raw     int64
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	if !w.decided {
		w.decided = true
		if w.cm.shouldCompress(w.Header(), len(data)) {
			h := w.Header()
			h.Set("Content-Encoding", "gzip")
			h.Add("Vary", "Accept-Encoding")
			h.Del("Content-Length")

			w.gz = w.cm.pool.Get().(*gzip.Writer)
			w.gz.Reset(w.ResponseWriter)
		}
	}

	if w.gz == nil {
		return w.ResponseWriter.Write(data)
	}
	w.raw += int64(len(data))
	return w.gz.Write(data)
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipResponseWriter) Flush() {
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) finish() {
	if w.gz == nil {
		if w.decided {
			w.cm.stats.record(int64(w.ResponseWriter.Size()), 0, false)
		}
		return
	}
	_ = w.gz.Close()
	w.gz.Reset(io.Discard)
	w.cm.pool.Put(w.gz)
	w.cm.stats.record(w.raw, int64(w.ResponseWriter.Size()), true)
	w.gz = nil
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	totalResponses      atomic.Int64
	compressedResponses atomic.Int64
	rawBytes            atomic.Int64
	compressedBytes     atomic.Int64
}

// CompressionSnapshot is a point-in-time copy of CompressionStats.
type CompressionSnapshot struct {
	TotalResponses      int64   `json:"total_responses"`
	CompressedResponses int64   `json:"compressed_responses"`
	RawBytes            int64   `json:"raw_bytes"`
	CompressedBytes     int64   `json:"compressed_bytes"`
	Ratio               float64 `json:"compression_ratio"`
}

func (cs *CompressionStats) record(rawSize, compressedSize int64, compressed bool) {
	cs.totalResponses.Add(1)
	if compressed {
		cs.compressedResponses.Add(1)
		cs.rawBytes.Add(rawSize)
		cs.compressedBytes.Add(compressedSize)
	}
}

func (cs *CompressionStats) snapshot() CompressionSnapshot {
	s := CompressionSnapshot{
		TotalResponses:      cs.totalResponses.Load(),
		CompressedResponses: cs.compressedResponses.Load(),
		RawBytes:            cs.rawBytes.Load(),
		CompressedBytes:     cs.compressedBytes.Load(),
	}
	if s.RawBytes > 0 {
		s.Ratio = float64(s.CompressedBytes) / float64(s.RawBytes)
	}
	return s
}
