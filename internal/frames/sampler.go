// Package frames extracts still frames from uploaded videos with ffmpeg.
package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
)

// Config controls frame sampling.
type Config struct {
	Count int // frames per video
	Width int // output width in pixels, height keeps aspect ratio
	// Quality is the mjpeg qscale, 2 (best) to 31.
	Quality int
	TempDir string
}

// DefaultConfig samples three frames, matching what the vision prompt expects.
func DefaultConfig() Config {
	return Config{Count: 3, Width: 512, Quality: 4}
}

// FFmpegSampler samples evenly spaced JPEG frames using the ffmpeg and
// ffprobe binaries.
type FFmpegSampler struct {
	cfg         Config
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewFFmpegSampler locates ffmpeg and ffprobe on PATH.
func NewFFmpegSampler(cfg Config, logger *slog.Logger) (*FFmpegSampler, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	if cfg.Count <= 0 {
		cfg.Count = DefaultConfig().Count
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultConfig().Width
	}
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultConfig().Quality
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FFmpegSampler{
		cfg:         cfg,
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}, nil
}

// Sample writes the video to a temp file and extracts cfg.Count frames.
func (s *FFmpegSampler) Sample(ctx context.Context, video analysis.Video) ([]analysis.Frame, error) {
	if len(video.Data) == 0 {
		return nil, fmt.Errorf("empty video")
	}

	tmp, err := os.CreateTemp(s.cfg.TempDir, "peek-*"+extensionFor(video))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(video.Data); err != nil {
		apperrors.SafeClose(tmp, "video temp file")
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	duration, err := s.probeDuration(ctx, tmp.Name())
	if err != nil {
		return nil, err
	}

	stamps := Timestamps(duration, s.cfg.Count)
	s.logger.Debug("sampling frames",
		"filename", video.Filename,
		"duration", duration.String(),
		"frames", len(stamps),
	)

	out := make([]analysis.Frame, 0, len(stamps))
	for i, ts := range stamps {
		jpeg, err := s.extractFrame(ctx, tmp.Name(), ts)
		if err != nil {
			return nil, fmt.Errorf("extract frame at %s: %w", ts, err)
		}
		if len(jpeg) == 0 {
			// Past the end of a stream with no reliable duration.
			continue
		}
		out = append(out, analysis.Frame{Index: i, Timestamp: ts, DataURL: DataURL(jpeg)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no frames extracted from %q", video.Filename)
	}
	return out, nil
}

func (s *FFmpegSampler) probeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbeDuration(output)
}

func (s *FFmpegSampler) extractFrame(ctx context.Context, path string, ts time.Duration) ([]byte, error) {
	args := []string{
		"-v", "error",
		"-ss", formatSeconds(ts),
		"-i", path,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", s.cfg.Width),
		"-q:v", strconv.Itoa(s.cfg.Quality),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbeDuration reads the container duration from ffprobe JSON output.
// Browser recordings often carry no duration; that yields zero, not an error.
func ParseProbeDuration(output []byte) (time.Duration, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	secs, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil || secs < 0 {
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Timestamps returns n evenly spaced sample points strictly inside the
// video. With an unknown duration it samples one frame per second from zero.
func Timestamps(duration time.Duration, n int) []time.Duration {
	if n <= 0 {
		return nil
	}
	out := make([]time.Duration, n)
	for i := range out {
		if duration <= 0 {
			out[i] = time.Duration(i) * time.Second
			continue
		}
		out[i] = duration * time.Duration(i+1) / time.Duration(n+1)
	}
	return out
}

// DataURL encodes a JPEG as a data URL.
func DataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func extensionFor(video analysis.Video) string {
	if i := strings.LastIndexByte(video.Filename, '.'); i >= 0 && len(video.Filename)-i <= 6 {
		return video.Filename[i:]
	}
	switch {
	case strings.Contains(video.ContentType, "webm"):
		return ".webm"
	case strings.Contains(video.ContentType, "quicktime"):
		return ".mov"
	default:
		return ".mp4"
	}
}
