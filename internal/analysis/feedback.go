package analysis

import (
	"fmt"
	"strings"
)

// Generate builds the three report sections for one category, in the order
// Overview, Key Observations, Improvement Tips.
func Generate(c Category, score int) []ReportSection {
	severity := Classify(score)
	kind := severity.Kind()
	fb := Lookup(c, severity.Index())

	return []ReportSection{
		{
			Title:   c.Name() + " Overview",
			Content: fmt.Sprintf("Your %s shows %s performance with a score of %d%%.", strings.ToLower(c.Name()), severity.strengthWord(), score),
			Type:    kind,
		},
		{
			Title:   "Key Observations",
			Content: fb.Observation,
			Type:    kind,
		},
		{
			// Tips are always informational.
			Title:   "Improvement Tips",
			Content: fb.Tip,
			Type:    KindInfo,
		},
	}
}
