package analysis

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name         string
		scores       [3]int
		overall      string
		overallKind  Kind
		strengths    string
		improvements string
	}{
		{
			name:         "all excellent",
			scores:       [3]int{90, 90, 90},
			overall:      "Your presentation shows excellent results with an average score of 90%.",
			overallKind:  KindSuccess,
			strengths:    "Your posture and confidence and eye contact are your key strengths.",
			improvements: "No major areas for improvement. Keep up the consistent performance.",
		},
		{
			name:         "all fair",
			scores:       [3]int{60, 60, 60},
			overall:      "Your presentation shows fair results with an average score of 60%.",
			overallKind:  KindInfo,
			strengths:    "Keep practicing to turn each area into a strength.",
			improvements: "Focus on improving your posture and confidence and eye contact in future presentations.",
		},
		{
			name:         "floored average stays medium",
			scores:       [3]int{70, 70, 71},
			overall:      "Your presentation shows good results with an average score of 70%.",
			overallKind:  KindWarning,
			strengths:    "Keep practicing to turn each area into a strength.",
			improvements: "Focus on improving your posture and confidence and eye contact in future presentations.",
		},
		{
			name:         "mixed scores",
			scores:       [3]int{78, 85, 64},
			overall:      "Your presentation shows good results with an average score of 75%.",
			overallKind:  KindWarning,
			strengths:    "Your posture and confidence are your key strengths.",
			improvements: "Focus on improving your eye contact in future presentations.",
		},
		{
			name:         "single strength",
			scores:       [3]int{74, 75, 60},
			overall:      "Your presentation shows fair results with an average score of 69%.",
			overallKind:  KindInfo,
			strengths:    "Your confidence is your key strength.",
			improvements: "Focus on improving your posture and eye contact in future presentations.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Aggregate(tt.scores[0], tt.scores[1], tt.scores[2])

			assert.Equal(t, Metrics{Posture: tt.scores[0], Confidence: tt.scores[1], EyeContact: tt.scores[2]}, res.Metrics)

			overall := res.Sections[OverallKey]
			require.Len(t, overall, 3)
			assert.Equal(t, "Overall Performance", overall[0].Title)
			assert.Equal(t, tt.overall, overall[0].Content)
			assert.Equal(t, tt.overallKind, overall[0].Type)

			assert.Equal(t, "Key Strengths", overall[1].Title)
			assert.Equal(t, tt.strengths, overall[1].Content)
			assert.Equal(t, KindSuccess, overall[1].Type)

			assert.Equal(t, "Areas for Improvement", overall[2].Title)
			assert.Equal(t, tt.improvements, overall[2].Content)
			assert.Equal(t, KindInfo, overall[2].Type)
		})
	}
}

func TestAggregate_CategorySections(t *testing.T) {
	res := Aggregate(85, 72, 55)

	assert.Equal(t, Generate(Posture, 85), res.Sections["posture"])
	assert.Equal(t, Generate(Confidence, 72), res.Sections["confidence"])
	assert.Equal(t, Generate(EyeContact, 55), res.Sections["eyeContact"])
}

// assertResultSchema checks the JSON shape every analysis response must have.
func assertResultSchema(t *testing.T, res AnalysisResult) {
	t.Helper()

	raw, err := json.Marshal(res)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.ElementsMatch(t, []string{"metrics", "sections"}, keys(doc))

	var metrics map[string]int
	require.NoError(t, json.Unmarshal(doc["metrics"], &metrics))
	assert.ElementsMatch(t, []string{"posture", "confidence", "eyeContact"}, keys(metrics))
	for k, v := range metrics {
		assert.True(t, v >= 0 && v <= 100, "metric %s out of range: %d", k, v)
	}

	var sections map[string][]map[string]string
	require.NoError(t, json.Unmarshal(doc["sections"], &sections))
	assert.ElementsMatch(t, []string{"posture", "confidence", "eyeContact", "overall"}, keys(sections))
	for key, items := range sections {
		assert.NotEmpty(t, items, "section %s", key)
		for _, item := range items {
			assert.ElementsMatch(t, []string{"title", "content", "type"}, keys(item))
			assert.Contains(t, []string{"info", "success", "warning"}, item["type"])
		}
	}
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestAggregate_Schema(t *testing.T) {
	assertResultSchema(t, Aggregate(90, 72, 40))
}
