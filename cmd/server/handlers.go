package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/cache"
	"github.com/ZanzyTHEbar/posture-peek/internal/database"
	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
	"github.com/ZanzyTHEbar/posture-peek/internal/frames"
	"github.com/ZanzyTHEbar/posture-peek/internal/middleware"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-peek/internal/ratelimit"
	"github.com/ZanzyTHEbar/posture-peek/internal/resilience"
	"github.com/ZanzyTHEbar/posture-peek/internal/security"
)

const (
	videoField = "video"

	// AnalysisSourceHeader tells the client whether scores came from the
	// model, the sample fallback, or the cache.
	AnalysisSourceHeader = "X-Analysis-Source"
)

// handleAnalyze scores an uploaded presentation video
//
// @Summary      Analyze a presentation video
// @Description  Scores posture, confidence and eye contact. When the vision model is unavailable the response carries sample scores and X-Analysis-Source: fallback.
// @Tags         analysis
// @Accept       multipart/form-data
// @Produce      json
// @Param        video  formData  file  true  "Video file (video/*)"
// @Success      200  {object}  analysis.AnalysisResult
// @Header       200  {string}  X-Analysis-Source  "model, fallback or cache"
// @Failure      400  {object}  apperrors.Envelope
// @Failure      401  {object}  apperrors.Envelope
// @Failure      413  {object}  apperrors.Envelope
// @Failure      429  {object}  apperrors.Envelope
// @Failure      500  {object}  apperrors.Envelope
// @Security     BearerAuth
// @Router       /api/analyze [post]
func (s *server) handleAnalyze(c *gin.Context) {
	video, err := readVideo(c)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}

	start := time.Now()
	key := cache.Key(video.Data)

	result, hit := s.cache.Get(key)
	if hit {
		duration := time.Since(start)
		s.metrics.RecordAnalysis(analysis.SourceCache, duration)
		s.logger.Info("Analysis served from cache",
			"filename", video.Filename,
			"request_id", monitoring.RequestIDFromContext(c.Request.Context()),
		)
	} else {
		result = s.analyzer.Analyze(c.Request.Context(), video)
		s.cache.Set(key, result)
	}

	if s.runs != nil {
		s.runs.Record(c.Request.Context(), video, key, result, time.Since(start), c.ClientIP(), c.GetString(security.SubjectKey))
	}

	c.Header(AnalysisSourceHeader, string(result.Source))
	c.JSON(http.StatusOK, result)
}

// readVideo extracts the uploaded video from the multipart form.
func readVideo(c *gin.Context) (analysis.Video, error) {
	fh, err := c.FormFile(videoField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return analysis.Video{}, apperrors.NewPayloadTooLargeError(maxErr.Limit)
		}
		return analysis.Video{}, apperrors.NewValidationError("No video file provided", err)
	}
	if fh.Size == 0 {
		return analysis.Video{}, apperrors.NewValidationError("Video file is empty")
	}

	f, err := fh.Open()
	if err != nil {
		return analysis.Video{}, apperrors.NewInternalError("Failed to open uploaded video", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return analysis.Video{}, apperrors.NewInternalError("Failed to read uploaded video", err)
	}

	mediaType := frames.DetectMediaType(fh.Filename, fh.Header.Get("Content-Type"), data)
	if !frames.IsVideo(mediaType) {
		return analysis.Video{}, apperrors.NewValidationError("Uploaded file is not a video",
			fmt.Sprintf("media type %q", mediaType))
	}

	return analysis.Video{
		Filename:    filepath.Base(fh.Filename),
		ContentType: mediaType,
		Data:        data,
	}, nil
}

type runsResponse struct {
	Runs     []database.AnalysisRun `json:"runs"`
	Count    int                    `json:"count"`
	BySource map[string]int64       `json:"by_source"`
}

// handleRuns lists recent analysis runs
//
// @Summary      Recent analyses
// @Tags         runs
// @Produce      json
// @Param        limit  query  int  false  "Maximum entries, 1 to 100"  default(20)
// @Success      200  {object}  runsResponse
// @Failure      400  {object}  apperrors.Envelope
// @Failure      503  {object}  apperrors.Envelope
// @Router       /api/runs [get]
func (s *server) handleRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusServiceUnavailable, apperrors.Envelope{Error: "Run log is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apperrors.Abort(c, apperrors.NewValidationError("limit must be a positive integer", raw))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	runs, err := s.runs.Recent(ctx, limit)
	if err != nil {
		apperrors.Abort(c, apperrors.NewInternalError("Failed to load analysis runs", err))
		return
	}
	if runs == nil {
		runs = []database.AnalysisRun{}
	}

	counts, err := s.runs.CountBySource(ctx)
	if err != nil {
		apperrors.Abort(c, apperrors.NewInternalError("Failed to count analysis runs", err))
		return
	}

	c.JSON(http.StatusOK, runsResponse{Runs: runs, Count: len(runs), BySource: counts})
}

type modelStatus struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name,omitempty"`
}

type healthResponse struct {
	Status    string                              `json:"status"`
	Timestamp string                              `json:"timestamp"`
	Version   string                              `json:"version"`
	Model     modelStatus                         `json:"model"`
	Services  map[string]resilience.ServiceHealth `json:"services"`
}

// handleHealth reports liveness and vision model degradation
//
// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  healthResponse
// @Failure      503  {object}  healthResponse
// @Router       /health [get]
func (s *server) handleHealth(c *gin.Context) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   version,
		Services:  s.degradation.GetAllServiceHealth(),
	}
	if s.vision != nil {
		resp.Model = modelStatus{Enabled: true, Name: s.vision.Model()}
	}

	switch s.degradation.WorstLevel() {
	case resilience.LevelNormal:
	case resilience.LevelEmergency:
		// analyses still succeed with sample scores, but the model is down
		resp.Status = "degraded"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	default:
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

type servicesResponse struct {
	Services        map[string]resilience.ServiceHealth `json:"services"`
	CircuitBreakers map[string]resilience.Stats         `json:"circuit_breakers"`
	Pools           map[string]any                      `json:"pools"`
	Cache           cache.Stats                         `json:"cache"`
	RateLimit       ratelimit.Stats                     `json:"rate_limit"`
	Compression     *middleware.CompressionSnapshot     `json:"compression,omitempty"`
	Timestamp       string                              `json:"timestamp"`
}

// handleServiceHealth reports dependency health, breakers and pools
//
// @Summary      Service health
// @Tags         health
// @Produce      json
// @Success      200  {object}  servicesResponse
// @Router       /health/services [get]
func (s *server) handleServiceHealth(c *gin.Context) {
	pools := map[string]any{}
	if s.vision != nil {
		pools["vision"] = s.vision.GetPoolStats()
	}
	if s.db != nil {
		pools["database"] = s.db.GetPoolStats()
	}
	if s.redis.IsEnabled() {
		pools["redis"] = s.redis.GetPoolStats()
	}

	resp := servicesResponse{
		Services:        s.degradation.GetAllServiceHealth(),
		CircuitBreakers: s.breakers.GetStats(),
		Pools:           pools,
		Cache:           s.cache.Stats(),
		RateLimit:       s.limiter.GetStats(),
		Timestamp:       time.Now().Format(time.RFC3339),
	}
	if s.gzip != nil {
		stats := s.gzip.GetStats()
		resp.Compression = &stats
	}
	c.JSON(http.StatusOK, resp)
}

// handleMetrics returns in-process counters as JSON
//
// @Summary      Metrics
// @Tags         health
// @Produce      json
// @Success      200  {object}  monitoring.Stats
// @Router       /metrics [get]
func (s *server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.GetStats())
}
