package database

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
)

const (
	DefaultRunLimit = 20
	MaxRunLimit     = 100
	recordTimeout   = 5 * time.Second
)

// RunLog records analysis runs and serves the recent-runs listing
type RunLog struct {
	repo   *Repository
	logger *slog.Logger
}

// NewRunLog wraps a repository. logger may be nil.
func NewRunLog(repo *Repository, logger *slog.Logger) *RunLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLog{repo: repo, logger: logger}
}

// Record stores the run. Failures are logged and never reach the caller's
// response; the analysis itself already succeeded.
func (s *RunLog) Record(ctx context.Context, video analysis.Video, videoHash string, result analysis.AnalysisResult, duration time.Duration, clientIP, subject string) *AnalysisRun {
	run := NewAnalysisRun(video, videoHash, result, duration, clientIP, subject)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := s.repo.InsertRun(ctx, run); err != nil {
		s.logger.Warn("Failed to record analysis run", "run_id", run.ID, "error", err)
		return nil
	}
	return run
}

// Recent returns up to limit runs, clamping limit to [1, MaxRunLimit]
// and using DefaultRunLimit when limit is not positive.
func (s *RunLog) Recent(ctx context.Context, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = DefaultRunLimit
	}
	if limit > MaxRunLimit {
		limit = MaxRunLimit
	}
	return s.repo.RecentRuns(ctx, limit)
}

// CountBySource returns run counts per result source
func (s *RunLog) CountBySource(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountBySource(ctx)
}
