package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		score    int
		expected Severity
		kind     Kind
	}{
		{"zero is low", 0, Low, KindInfo},
		{"69 is low", 69, Low, KindInfo},
		{"70 is medium", 70, Medium, KindWarning},
		{"79 is medium", 79, Medium, KindWarning},
		{"80 is high", 80, High, KindSuccess},
		{"100 is high", 100, High, KindSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity := Classify(tt.score)
			assert.Equal(t, tt.expected, severity)
			assert.Equal(t, tt.kind, severity.Kind())
		})
	}
}

func TestClassify_AllScores(t *testing.T) {
	for s := 0; s <= 100; s++ {
		got := Classify(s)
		switch {
		case s >= 80:
			assert.Equal(t, High, got, "score %d", s)
		case s >= 70:
			assert.Equal(t, Medium, got, "score %d", s)
		default:
			assert.Equal(t, Low, got, "score %d", s)
		}
	}
}

func TestSeverity_Index(t *testing.T) {
	assert.Equal(t, 0, High.Index())
	assert.Equal(t, 1, Medium.Index())
	assert.Equal(t, 2, Low.Index())
}
