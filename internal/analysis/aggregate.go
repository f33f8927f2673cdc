package analysis

import (
	"fmt"
	"strings"
)

// strengthThreshold splits categories into strengths and improvement areas
// in the overall report. It is independent of the severity cut points.
const strengthThreshold = 75

// Aggregate combines three category scores into a full AnalysisResult.
// The overall severity comes from the floored mean of the scores.
func Aggregate(posture, confidence, eyeContact int) AnalysisResult {
	m := Metrics{Posture: posture, Confidence: confidence, EyeContact: eyeContact}

	sections := make(map[string][]ReportSection, len(Categories)+1)
	for _, c := range Categories {
		sections[c.Key()] = Generate(c, m.Score(c))
	}
	sections[OverallKey] = overallSections(m)

	return AnalysisResult{Metrics: m, Sections: sections}
}

func overallSections(m Metrics) []ReportSection {
	avg := m.Average()
	severity := Classify(avg)

	var strengths, weaknesses []string
	for _, c := range Categories {
		name := strings.ToLower(c.Name())
		if m.Score(c) >= strengthThreshold {
			strengths = append(strengths, name)
		} else {
			weaknesses = append(weaknesses, name)
		}
	}

	strengthText := "Keep practicing to turn each area into a strength."
	if len(strengths) > 0 {
		verb := "is"
		if len(strengths) > 1 {
			verb = "are"
		}
		strengthText = fmt.Sprintf("Your %s %s your key %s.", joinAnd(strengths), verb, plural(len(strengths), "strength", "strengths"))
	}

	improveText := "No major areas for improvement. Keep up the consistent performance."
	if len(weaknesses) > 0 {
		improveText = fmt.Sprintf("Focus on improving your %s in future presentations.", joinAnd(weaknesses))
	}

	return []ReportSection{
		{
			Title:   "Overall Performance",
			Content: fmt.Sprintf("Your presentation shows %s results with an average score of %d%%.", severity.overallWord(), avg),
			Type:    severity.Kind(),
		},
		{
			Title:   "Key Strengths",
			Content: strengthText,
			Type:    KindSuccess,
		},
		{
			Title:   "Areas for Improvement",
			Content: improveText,
			Type:    KindInfo,
		},
	}
}

// joinAnd joins names with " and ".
func joinAnd(names []string) string {
	return strings.Join(names, " and ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
