package main

import (
	"log/slog"
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/posture-peek/docs"
	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
)

func (s *server) router() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.Server.TrustedProxies); err != nil {
		slog.Warn("Ignoring invalid trusted proxies", "error", err)
	}

	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))
	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(s.security.SecurityHeaders)
	r.Use(s.security.CORSConfig())
	if s.gzip != nil {
		r.Use(s.gzip.Handler())
	}

	analyze := []gin.HandlerFunc{
		s.auth.Middleware(),
		s.limiter.AnalyzeRateLimitMiddleware(),
		s.security.LimitUpload,
		s.security.RequireMultipart,
		s.security.RequestTimeout,
		s.handleAnalyze,
	}
	r.POST("/api/analyze", analyze...)
	r.POST("/analyze-video", analyze...)

	api := r.Group("/api")
	api.GET("/runs", s.handleRuns)
	api.GET("/ratelimit", s.limiter.HandleRateLimitStatus())

	r.GET("/health", s.handleHealth)
	r.GET("/health/services", s.handleServiceHealth)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/metrics/prometheus", gin.WrapH(s.prom.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if s.cfg.Server.EnableProfiling {
		slog.Info("Enabling performance profiling endpoints")
		debug := r.Group("/debug/pprof")
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.POST("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		// heap, goroutine, allocs, block, mutex, threadcreate
		debug.GET("/:name", func(c *gin.Context) {
			pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
		})
	}

	return r
}
