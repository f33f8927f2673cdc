package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/posture-peek/internal/adapters"
	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	"github.com/ZanzyTHEbar/posture-peek/internal/config"
	"github.com/ZanzyTHEbar/posture-peek/internal/frames"
	"github.com/ZanzyTHEbar/posture-peek/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-peek/internal/report"
)

type analyzeOptions struct {
	output  string
	offline bool
	seed    int64
	verbose bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Analyze a presentation video",
		Example: `  # Analyze with the configured vision model
  OPENAI_API_KEY=sk-... peek analyze talk.webm

  # Preview the report with reproducible sample scores
  peek analyze talk.webm --offline --seed 42 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", report.FormatHuman, "Output format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Skip the vision model and use sample scores")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Seed for sample scores (0 picks a random seed)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline details to stderr")

	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, opts *analyzeOptions) error {
	if !validFormat(opts.output) {
		return fmt.Errorf("unknown output format %q (want one of %s)", opts.output, strings.Join(report.Formats, ", "))
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.seed != 0 {
		cfg.Analysis.Seed = opts.seed
	}

	video, err := loadVideo(path)
	if err != nil {
		return err
	}

	level := slog.LevelError
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := monitoring.NewLoggerTo(cmd.ErrOrStderr(), level)

	var sampler analysis.FrameSampler
	var classifier analysis.FrameClassifier
	if !opts.offline && cfg.ModelEnabled() {
		vision, err := adapters.NewVisionAdapter(adapters.VisionConfig{
			BaseURL: cfg.Model.BaseURL,
			APIKey:  cfg.Model.APIKey,
			Model:   cfg.Model.Name,
			Detail:  cfg.Model.Detail,
			Timeout: cfg.Model.Timeout,
			Breaker: adapters.DefaultVisionConfig().Breaker,
		}, nil, logger)
		if err != nil {
			return err
		}
		defer vision.Close()
		classifier = vision

		ffmpeg, err := frames.NewFFmpegSampler(frames.Config{
			Count: cfg.Analysis.Frames,
			Width: cfg.Analysis.FrameWidth,
		}, logger.Logger)
		if err != nil {
			printWarning(cmd, fmt.Sprintf("Frame sampling unavailable: %v", err))
		} else {
			sampler = ffmpeg
		}
	}

	analyzerOpts := []analysis.Option{
		analysis.WithLogger(logger.Logger),
		analysis.WithModelTimeout(cfg.Analysis.ModelTimeout),
		analysis.WithMaxConcurrency(cfg.Analysis.MaxConcurrency),
	}
	if cfg.Analysis.Seed != 0 {
		analyzerOpts = append(analyzerOpts, analysis.WithScoreSource(analysis.NewRandomScoreSource(cfg.Analysis.Seed)))
	}
	analyzer := analysis.NewAnalyzer(sampler, classifier, analyzerOpts...)

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriterFile(os.Stderr))
	s.Suffix = fmt.Sprintf(" Analyzing %s...", video.Filename)
	s.Start()
	result := analyzer.Analyze(cmd.Context(), video)
	s.Stop()

	if result.IsFallback() && opts.output != report.FormatHuman {
		printWarning(cmd, "Vision model unavailable: showing sample scores")
	}
	return report.Render(cmd.OutOrStdout(), result, opts.output)
}

func validFormat(format string) bool {
	for _, f := range report.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// loadVideo reads a local file and resolves its media type from the
// extension, then from its content.
func loadVideo(path string) (analysis.Video, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return analysis.Video{}, fmt.Errorf("read video: %w", err)
	}
	if len(data) == 0 {
		return analysis.Video{}, fmt.Errorf("video file %s is empty", path)
	}

	mediaType := frames.DetectMediaType(path, "", data)
	if !frames.IsVideo(mediaType) {
		return analysis.Video{}, fmt.Errorf("%s is not a video (detected %s)", path, mediaType)
	}

	return analysis.Video{
		Filename:    filepath.Base(path),
		ContentType: mediaType,
		Data:        data,
	}, nil
}

func printWarning(cmd *cobra.Command, msg string) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintf(cmd.ErrOrStderr(), "! %s\n", msg)
}
