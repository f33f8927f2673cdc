package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
)

// AnalysisRun is one logged analyze request
type AnalysisRun struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	VideoHash   string    `json:"video_hash" db:"video_hash"`
	Source      string    `json:"source" db:"source"`
	Posture     int       `json:"posture" db:"posture"`
	Confidence  int       `json:"confidence" db:"confidence"`
	EyeContact  int       `json:"eyeContact" db:"eye_contact"`
	Average     int       `json:"average" db:"average"`
	DurationMs  int64     `json:"duration_ms" db:"duration_ms"`
	ClientIP    string    `json:"-" db:"client_ip"`
	Subject     string    `json:"subject,omitempty" db:"subject"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// NewAnalysisRun records the outcome of analyzing video
func NewAnalysisRun(video analysis.Video, videoHash string, result analysis.AnalysisResult, duration time.Duration, clientIP, subject string) *AnalysisRun {
	return &AnalysisRun{
		ID:          uuid.New().String(),
		Filename:    video.Filename,
		ContentType: video.ContentType,
		SizeBytes:   int64(len(video.Data)),
		VideoHash:   videoHash,
		Source:      string(result.Source),
		Posture:     result.Metrics.Posture,
		Confidence:  result.Metrics.Confidence,
		EyeContact:  result.Metrics.EyeContact,
		Average:     result.Metrics.Average(),
		DurationMs:  duration.Milliseconds(),
		ClientIP:    clientIP,
		Subject:     subject,
		CreatedAt:   time.Now().UTC(),
	}
}
