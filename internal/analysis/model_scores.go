package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FrameAssessment is the structured reply the vision model gives for one frame.
type FrameAssessment struct {
	Posture    *int   `json:"posture"`
	Confidence *int   `json:"confidence"`
	EyeContact *int   `json:"eyeContact"`
	Feedback   string `json:"feedback,omitempty"`
}

// frameReply mirrors FrameAssessment on the wire; models sometimes answer
// with fractional scores.
type frameReply struct {
	Posture    *float64 `json:"posture"`
	Confidence *float64 `json:"confidence"`
	EyeContact *float64 `json:"eyeContact"`
	Feedback   string   `json:"feedback,omitempty"`
}

// ParseFrameAssessment decodes a model reply. Replies wrapped in a markdown
// code fence are accepted. Every category score must be present; fractional
// scores are truncated toward zero and clamped to [0,100].
func ParseFrameAssessment(reply string) (FrameAssessment, error) {
	body := stripCodeFence(reply)
	if body == "" {
		return FrameAssessment{}, fmt.Errorf("empty model reply")
	}

	var r frameReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return FrameAssessment{}, fmt.Errorf("decode model reply: %w", err)
	}
	if r.Posture == nil || r.Confidence == nil || r.EyeContact == nil {
		return FrameAssessment{}, fmt.Errorf("model reply missing category scores")
	}
	return FrameAssessment{
		Posture:    truncScore(*r.Posture),
		Confidence: truncScore(*r.Confidence),
		EyeContact: truncScore(*r.EyeContact),
		Feedback:   r.Feedback,
	}, nil
}

func truncScore(v float64) *int {
	n := int(math.Max(0, math.Min(100, math.Trunc(v))))
	return &n
}

// ScoreFrames combines per-frame assessments into category scores: each
// frame score is clamped to [0,100] and the category score is the floored mean.
func ScoreFrames(frames []FrameAssessment) (Metrics, error) {
	if len(frames) == 0 {
		return Metrics{}, fmt.Errorf("no frame assessments to score")
	}

	var p, c, e int
	for _, f := range frames {
		p += clampScore(*f.Posture)
		c += clampScore(*f.Confidence)
		e += clampScore(*f.EyeContact)
	}
	n := len(frames)
	return Metrics{Posture: p / n, Confidence: c / n, EyeContact: e / n}, nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
