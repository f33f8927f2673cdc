package analysis

// Severity is the three-level classification of a score.
type Severity int

const (
	Low Severity = iota
	Medium
	High
)

func (s Severity) String() string {
	switch s {
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

// Classify maps a score to its severity. The same cut points apply to
// category and overall scores.
func Classify(score int) Severity {
	switch {
	case score >= 80:
		return High
	case score >= 70:
		return Medium
	default:
		return Low
	}
}

// Kind returns the section kind shown for this severity.
func (s Severity) Kind() Kind {
	switch s {
	case High:
		return KindSuccess
	case Medium:
		return KindWarning
	default:
		return KindInfo
	}
}

// Index returns the feedback table row for this severity: 0 is the best row.
func (s Severity) Index() int {
	switch s {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

func (s Severity) strengthWord() string {
	switch s {
	case High:
		return "strong"
	case Medium:
		return "moderate"
	default:
		return "needs improvement"
	}
}

func (s Severity) overallWord() string {
	switch s {
	case High:
		return "excellent"
	case Medium:
		return "good"
	default:
		return "fair"
	}
}
