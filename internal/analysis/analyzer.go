package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
)

// Frame is one still image sampled from a video.
type Frame struct {
	Index     int
	Timestamp time.Duration
	// DataURL is a data:image/jpeg;base64 URL accepted by vision models.
	DataURL string
}

// FrameSampler extracts still frames from a video.
type FrameSampler interface {
	Sample(ctx context.Context, video Video) ([]Frame, error)
}

// FrameClassifier asks a vision model to assess one frame and returns its raw reply.
type FrameClassifier interface {
	ClassifyFrame(ctx context.Context, frame Frame) (string, error)
}

// Recorder receives analysis outcomes for metrics.
type Recorder interface {
	RecordAnalysis(source Source, duration time.Duration)
	RecordModelFailure(category string)
}

// ErrModelUnavailable is returned when no sampler or classifier is configured.
var ErrModelUnavailable = errors.New("vision model not configured")

const (
	defaultModelTimeout   = 45 * time.Second
	defaultMaxConcurrency = 4
)

// Analyzer orchestrates the analysis pipeline: sample frames, classify them
// with the vision model, score, and fall back to sample scores on any failure.
type Analyzer struct {
	sampler        FrameSampler
	classifier     FrameClassifier
	scores         ScoreSource
	recorder       Recorder
	logger         *slog.Logger
	modelTimeout   time.Duration
	maxConcurrency int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithScoreSource sets the fallback score source.
func WithScoreSource(src ScoreSource) Option {
	return func(a *Analyzer) { a.scores = src }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Analyzer) { a.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithModelTimeout bounds the whole model attempt.
func WithModelTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.modelTimeout = d
		}
	}
}

// WithMaxConcurrency bounds concurrent per-frame model calls.
func WithMaxConcurrency(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxConcurrency = n
		}
	}
}

// NewAnalyzer creates an analyzer. A nil sampler or classifier makes every
// analysis use the fallback path.
func NewAnalyzer(sampler FrameSampler, classifier FrameClassifier, opts ...Option) *Analyzer {
	a := &Analyzer{
		sampler:        sampler,
		classifier:     classifier,
		logger:         slog.Default(),
		modelTimeout:   defaultModelTimeout,
		maxConcurrency: defaultMaxConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.scores == nil {
		a.scores = NewTimeSeededScoreSource()
	}
	return a
}

// Analyze returns an AnalysisResult for the video. It never fails: any error
// from the model path is logged and replaced by a fallback result.
func (a *Analyzer) Analyze(ctx context.Context, video Video) AnalysisResult {
	start := time.Now()

	res, err := a.analyzeWithModel(ctx, video)
	if err != nil {
		appErr := classifyModelError(err)
		apperrors.Log(a.logger.With("filename", video.Filename, "analysis_source", SourceFallback), appErr)
		if a.recorder != nil {
			a.recorder.RecordModelFailure(string(appErr.Category))
		}
		res = FallbackResult(a.scores)
	}

	duration := time.Since(start)
	a.logger.Info("Analysis Completed",
		"analysis_source", res.Source,
		"posture", res.Metrics.Posture,
		"confidence", res.Metrics.Confidence,
		"eye_contact", res.Metrics.EyeContact,
		"average", res.Metrics.Average(),
		"duration_ms", duration.Milliseconds(),
	)
	if a.recorder != nil {
		a.recorder.RecordAnalysis(res.Source, duration)
	}
	return res
}

func (a *Analyzer) analyzeWithModel(ctx context.Context, video Video) (AnalysisResult, error) {
	if a.sampler == nil || a.classifier == nil {
		return AnalysisResult{}, ErrModelUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, a.modelTimeout)
	defer cancel()

	frames, err := a.sampler.Sample(ctx, video)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("sample frames: %w", err)
	}
	if len(frames) == 0 {
		return AnalysisResult{}, fmt.Errorf("sample frames: no frames extracted")
	}

	assessments := make([]FrameAssessment, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrency)
	for i, frame := range frames {
		g.Go(func() error {
			reply, err := a.classifier.ClassifyFrame(gctx, frame)
			if err != nil {
				return fmt.Errorf("classify frame %d: %w", frame.Index, err)
			}
			fa, err := ParseFrameAssessment(reply)
			if err != nil {
				return fmt.Errorf("frame %d: %w", frame.Index, err)
			}
			assessments[i] = fa
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AnalysisResult{}, err
	}

	m, err := ScoreFrames(assessments)
	if err != nil {
		return AnalysisResult{}, err
	}

	res := Aggregate(m.Posture, m.Confidence, m.EyeContact)
	res.Source = SourceModel
	return res, nil
}

func classifyModelError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewTimeoutError("Vision model timed out, using sample scores", err)
	}
	if errors.Is(err, ErrModelUnavailable) {
		return apperrors.NewConfigurationError("Vision model not configured, using sample scores", err)
	}
	return apperrors.NewExternalAPIError("vision-model", err)
}
