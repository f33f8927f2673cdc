package analysis

import "fmt"

// Category is one of the evaluated presentation dimensions.
type Category int

const (
	Posture Category = iota
	Confidence
	EyeContact
)

// Categories lists every category in report order.
var Categories = [...]Category{Posture, Confidence, EyeContact}

// Name returns the display name used in report titles.
func (c Category) Name() string {
	switch c {
	case Posture:
		return "Posture"
	case Confidence:
		return "Confidence"
	case EyeContact:
		return "Eye Contact"
	}
	panic(fmt.Sprintf("analysis: unknown category %d", int(c)))
}

// Key returns the JSON key of the category in metrics and sections.
func (c Category) Key() string {
	switch c {
	case Posture:
		return "posture"
	case Confidence:
		return "confidence"
	case EyeContact:
		return "eyeContact"
	}
	panic(fmt.Sprintf("analysis: unknown category %d", int(c)))
}

func (c Category) String() string { return c.Name() }

// OverallKey is the sections key of the synthesized overall report.
const OverallKey = "overall"

// Kind is the display tone of a report section.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
)

// ReportSection is one titled piece of feedback.
type ReportSection struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
	Type    Kind   `json:"type" yaml:"type"`
}

// Metrics holds the per-category scores, each in [0,100].
type Metrics struct {
	Posture    int `json:"posture" yaml:"posture"`
	Confidence int `json:"confidence" yaml:"confidence"`
	EyeContact int `json:"eyeContact" yaml:"eyeContact"`
}

// Score returns the score for a category.
func (m Metrics) Score(c Category) int {
	switch c {
	case Posture:
		return m.Posture
	case Confidence:
		return m.Confidence
	case EyeContact:
		return m.EyeContact
	}
	panic(fmt.Sprintf("analysis: unknown category %d", int(c)))
}

// Average is the floored mean of the three scores.
func (m Metrics) Average() int {
	return (m.Posture + m.Confidence + m.EyeContact) / 3
}

// Source records which path produced a result.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
	SourceCache    Source = "cache"
)

// AnalysisResult is the scored and narrated output of one analysis.
// Sections always holds exactly the posture, confidence, eyeContact and
// overall keys.
type AnalysisResult struct {
	Metrics  Metrics                    `json:"metrics" yaml:"metrics"`
	Sections map[string][]ReportSection `json:"sections" yaml:"sections"`

	// Source is not serialized so model and fallback results share one schema.
	Source Source `json:"-" yaml:"-"`
}

// IsFallback reports whether the result carries sample scores.
func (r AnalysisResult) IsFallback() bool {
	return r.Source == SourceFallback
}

// Video is an uploaded video artifact.
type Video struct {
	Filename    string
	ContentType string
	Data        []byte
}
