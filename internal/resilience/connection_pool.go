package resilience

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// PoolConfig sizes the shared transport for one upstream
type PoolConfig struct {
	MaxIdle     int
	MaxActive   int
	IdleTimeout time.Duration
	// RequestTimeout bounds a single round trip including the body read by the caller.
	RequestTimeout time.Duration
}

// ConnectionPool is an HTTP client for one upstream, sharing a tuned
// transport and guarded by a circuit breaker
type ConnectionPool struct {
	config         PoolConfig
	client         *http.Client
	transport      *http.Transport
	circuitBreaker *CircuitBreaker

	inFlight atomic.Int64
	requests atomic.Int64
	failures atomic.Int64
}

// StatusError is returned for upstream responses the breaker counts as failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// NewConnectionPool creates a pooled client guarded by cb
func NewConnectionPool(config PoolConfig, cb *CircuitBreaker) *ConnectionPool {
	if config.MaxIdle <= 0 {
		config.MaxIdle = 10
	}
	if config.MaxActive <= 0 {
		config.MaxActive = 20
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 90 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdle,
		MaxConnsPerHost:       config.MaxActive,
		MaxIdleConnsPerHost:   config.MaxIdle,
		IdleConnTimeout:       config.IdleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: config.RequestTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &ConnectionPool{
		config:         config,
		transport:      transport,
		client:         &http.Client{Transport: transport, Timeout: config.RequestTimeout},
		circuitBreaker: cb,
	}
}

// DoRequest sends one request through the circuit breaker and returns the
// response body. Transport errors, 429 and 5xx responses trip the breaker;
// other non-2xx responses are returned as a StatusError without counting
// against the upstream.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, []byte, error) {
	var (
		status  int
		payload []byte
		callErr error
	)

	cp.requests.Add(1)
	err := cp.circuitBreaker.Call(func() error {
		cp.inFlight.Add(1)
		defer cp.inFlight.Add(-1)

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		resp, err := cp.client.Do(req)
		if err != nil {
			slog.Warn("Request failed", "url", url, "error", err, "duration_ms", time.Since(start).Milliseconds())
			return err
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		slog.Debug("Request completed", "url", url, "status", status, "duration_ms", time.Since(start).Milliseconds())

		if status == http.StatusTooManyRequests || status >= 500 {
			return &StatusError{StatusCode: status, Body: truncate(payload, 512)}
		}
		if status < 200 || status > 299 {
			// Client errors are our fault, not the upstream's.
			callErr = &StatusError{StatusCode: status, Body: truncate(payload, 512)}
		}
		return nil
	})
	if err == nil {
		err = callErr
	}
	if err != nil {
		cp.failures.Add(1)
		return status, payload, err
	}
	return status, payload, nil
}

// PoolStats reports connection pool usage
type PoolStats struct {
	InFlight     int64 `json:"in_flight"`
	Requests     int64 `json:"requests"`
	Failures     int64 `json:"failures"`
	MaxIdle      int   `json:"max_idle"`
	MaxActive    int   `json:"max_active"`
	CircuitState Stats `json:"circuit_breaker"`
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() PoolStats {
	return PoolStats{
		InFlight:     cp.inFlight.Load(),
		Requests:     cp.requests.Load(),
		Failures:     cp.failures.Load(),
		MaxIdle:      cp.config.MaxIdle,
		MaxActive:    cp.config.MaxActive,
		CircuitState: cp.circuitBreaker.Stats(),
	}
}

// Close releases idle connections
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	slog.Info("Connection pool closed")
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
