package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/errors"
)

// DegradationLevel represents the current degradation state
type DegradationLevel int

const (
	LevelNormal DegradationLevel = iota
	LevelDegraded
	LevelCritical
	LevelEmergency
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelDegraded:
		return "degraded"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// MarshalText renders the level by name in JSON.
func (l DegradationLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name written by MarshalText.
func (l *DegradationLevel) UnmarshalText(text []byte) error {
	for level := LevelNormal; level <= LevelEmergency; level++ {
		if level.String() == string(text) {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("unknown degradation level %q", text)
}

// DegradationConfig holds configuration for graceful degradation
type DegradationConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DegradedThreshold   float64       `json:"degraded_threshold"`  // error rate, 0.0-1.0
	CriticalThreshold   float64       `json:"critical_threshold"`  // error rate, 0.0-1.0
	EmergencyThreshold  float64       `json:"emergency_threshold"` // error rate, 0.0-1.0
	// Window is how far back outcomes count toward the error rate.
	Window time.Duration `json:"window"`
	// MinRequests below which a service is never marked degraded.
	MinRequests        int           `json:"min_requests"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`
}

// DefaultDegradationConfig returns sensible defaults
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		HealthCheckInterval: 30 * time.Second,
		DegradedThreshold:   0.1,
		CriticalThreshold:   0.25,
		EmergencyThreshold:  0.5,
		Window:              5 * time.Minute,
		MinRequests:         4,
		HealthCheckTimeout:  5 * time.Second,
	}
}

// ServiceHealth represents the health status of a service
type ServiceHealth struct {
	ServiceName   string           `json:"service_name"`
	Level         DegradationLevel `json:"level"`
	ErrorRate     float64          `json:"error_rate"`
	TotalRequests int64            `json:"total_requests"`
	ErrorCount    int64            `json:"error_count"`
	LastError     string           `json:"last_error,omitempty"`
	LastErrorTime time.Time        `json:"last_error_time,omitempty"`
	StatusMessage string           `json:"status_message"`
}

type outcome struct {
	at time.Time
	ok bool
}

type serviceState struct {
	health   ServiceHealth
	outcomes []outcome
}

// DegradationManager tracks recent error rates for upstream services
type DegradationManager struct {
	config       DegradationConfig
	now          func() time.Time
	services     map[string]*serviceState
	healthChecks map[string]HealthCheckFunc
	mutex        sync.RWMutex
}

// HealthCheckFunc represents a function that checks service health
type HealthCheckFunc func(ctx context.Context) error

// NewDegradationManager creates a new degradation manager
func NewDegradationManager(config DegradationConfig) *DegradationManager {
	return &DegradationManager{
		config:       config,
		now:          time.Now,
		services:     make(map[string]*serviceState),
		healthChecks: make(map[string]HealthCheckFunc),
	}
}

// RegisterService registers a service with an optional health check function
func (dm *DegradationManager) RegisterService(serviceName string, healthCheck HealthCheckFunc) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.services[serviceName] = &serviceState{
		health: ServiceHealth{
			ServiceName:   serviceName,
			Level:         LevelNormal,
			StatusMessage: "Service is healthy",
		},
	}
	if healthCheck != nil {
		dm.healthChecks[serviceName] = healthCheck
	}

	slog.Info("Registered service for degradation management", "service", serviceName)
}

// RecordRequest records a successful call
func (dm *DegradationManager) RecordRequest(serviceName string) {
	dm.record(serviceName, nil)
}

// RecordError records a failed call
func (dm *DegradationManager) RecordError(serviceName string, err error) {
	if err == nil {
		err = errors.NewInternalError("Service request failed", nil)
	}
	dm.record(serviceName, err)
}

func (dm *DegradationManager) record(serviceName string, err error) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	svc, exists := dm.services[serviceName]
	if !exists {
		return
	}

	now := dm.now()
	svc.outcomes = append(svc.outcomes, outcome{at: now, ok: err == nil})
	if err != nil {
		svc.health.LastError = err.Error()
		svc.health.LastErrorTime = now
	}
	dm.updateDegradationLevel(svc, now)
}

// updateDegradationLevel recomputes the error rate over the window and the level from it
func (dm *DegradationManager) updateDegradationLevel(svc *serviceState, now time.Time) {
	cutoff := now.Add(-dm.config.Window)
	kept := svc.outcomes[:0]
	var failed int64
	for _, o := range svc.outcomes {
		if o.at.Before(cutoff) {
			continue
		}
		kept = append(kept, o)
		if !o.ok {
			failed++
		}
	}
	svc.outcomes = kept

	h := &svc.health
	h.TotalRequests = int64(len(kept))
	h.ErrorCount = failed
	h.ErrorRate = 0
	if h.TotalRequests > 0 {
		h.ErrorRate = float64(failed) / float64(h.TotalRequests)
	}

	oldLevel := h.Level
	switch {
	case h.TotalRequests < int64(dm.config.MinRequests):
		h.Level, h.StatusMessage = LevelNormal, "Service is healthy"
	case h.ErrorRate >= dm.config.EmergencyThreshold:
		h.Level, h.StatusMessage = LevelEmergency, "Service is in emergency state - high error rate"
	case h.ErrorRate >= dm.config.CriticalThreshold:
		h.Level, h.StatusMessage = LevelCritical, "Service is in critical state - elevated error rate"
	case h.ErrorRate >= dm.config.DegradedThreshold:
		h.Level, h.StatusMessage = LevelDegraded, "Service is degraded - moderate error rate"
	default:
		h.Level, h.StatusMessage = LevelNormal, "Service is healthy"
	}

	if oldLevel != h.Level {
		slog.Warn("Service degradation level changed",
			"service", h.ServiceName,
			"old_level", oldLevel.String(),
			"new_level", h.Level.String(),
			"error_rate", h.ErrorRate,
			"total_requests", h.TotalRequests,
			"error_count", h.ErrorCount)
	}
}

// GetServiceHealth returns a copy of the health status of a service
func (dm *DegradationManager) GetServiceHealth(serviceName string) (ServiceHealth, bool) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	svc, exists := dm.services[serviceName]
	if !exists {
		return ServiceHealth{}, false
	}
	return svc.health, true
}

// GetAllServiceHealth returns health status for all services
func (dm *DegradationManager) GetAllServiceHealth() map[string]ServiceHealth {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	result := make(map[string]ServiceHealth, len(dm.services))
	for name, svc := range dm.services {
		result[name] = svc.health
	}
	return result
}

// IsServiceAvailable reports false only for unknown services and services in emergency state
func (dm *DegradationManager) IsServiceAvailable(serviceName string) bool {
	h, ok := dm.GetServiceHealth(serviceName)
	return ok && h.Level != LevelEmergency
}

// WorstLevel returns the highest degradation level across services
func (dm *DegradationManager) WorstLevel() DegradationLevel {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	worst := LevelNormal
	for _, svc := range dm.services {
		if svc.health.Level > worst {
			worst = svc.health.Level
		}
	}
	return worst
}

// StartHealthChecks runs registered health checks every interval until ctx is done
func (dm *DegradationManager) StartHealthChecks(ctx context.Context) {
	if dm.config.HealthCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dm.performHealthChecks(ctx)
		}
	}
}

func (dm *DegradationManager) performHealthChecks(ctx context.Context) {
	dm.mutex.RLock()
	checks := make(map[string]HealthCheckFunc, len(dm.healthChecks))
	for name, check := range dm.healthChecks {
		checks[name] = check
	}
	dm.mutex.RUnlock()

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, dm.config.HealthCheckTimeout)
			defer cancel()

			if err := check(checkCtx); err != nil {
				dm.RecordError(name, errors.WrapError(err, "health check failed for service %s", name))
				return
			}
			dm.RecordRequest(name)
		}()
	}
	wg.Wait()
}

// ResetService clears a service's recorded outcomes
func (dm *DegradationManager) ResetService(serviceName string) {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if svc, exists := dm.services[serviceName]; exists {
		svc.outcomes = nil
		svc.health = ServiceHealth{
			ServiceName:   serviceName,
			Level:         LevelNormal,
			StatusMessage: "Service is healthy",
		}
		slog.Info("Service health reset", "service", serviceName)
	}
}
