package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/posture-peek/internal/analysis"
)

// Output formats accepted by Render.
const (
	FormatHuman = "human"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formats lists the accepted output formats in help-text order.
var Formats = []string{FormatHuman, FormatJSON, FormatYAML}

// Render writes the result to w in the requested format. An empty format
// means human.
func Render(w io.Writer, result analysis.AnalysisResult, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatYAML:
		return renderYAML(w, result)
	case FormatHuman, "":
		renderHuman(w, result)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func renderJSON(w io.Writer, result analysis.AnalysisResult) error {
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

func renderYAML(w io.Writer, result analysis.AnalysisResult) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return err
	}
	return enc.Close()
}

func renderHuman(w io.Writer, result analysis.AnalysisResult) {
	cyan := color.New(color.FgCyan, color.Bold)
	white := color.New(color.FgWhite, color.Bold)

	fmt.Fprintln(w)
	cyan.Fprintln(w, "PRESENTATION REPORT")
	if result.IsFallback() {
		color.New(color.FgYellow).Fprintln(w, "Vision model unavailable: showing sample scores.")
	}
	fmt.Fprintln(w)

	white.Fprintln(w, "SCORES:")
	for _, category := range analysis.Categories {
		score := result.Metrics.Score(category)
		fmt.Fprintf(w, "   %-12s %s\n", category.Name(), kindColor(analysis.Classify(score).Kind()).Sprintf("%3d%%", score))
	}
	avg := result.Metrics.Average()
	fmt.Fprintf(w, "   %-12s %s\n\n", "Average", kindColor(analysis.Classify(avg).Kind()).Sprintf("%3d%%", avg))

	for _, key := range sectionOrder() {
		sections := result.Sections[key]
		if len(sections) == 0 {
			continue
		}
		white.Fprintf(w, "%s:\n", strings.ToUpper(sectionHeading(key)))
		for _, s := range sections {
			fmt.Fprintf(w, "   %s %s\n", kindIcon(s.Type), kindColor(s.Type).Sprint(s.Title))
			fmt.Fprintf(w, "      %s\n", s.Content)
		}
		fmt.Fprintln(w)
	}
}

func sectionOrder() []string {
	keys := make([]string, 0, len(analysis.Categories)+1)
	for _, c := range analysis.Categories {
		keys = append(keys, c.Key())
	}
	return append(keys, analysis.OverallKey)
}

func sectionHeading(key string) string {
	for _, c := range analysis.Categories {
		if c.Key() == key {
			return c.Name()
		}
	}
	return "Overall"
}

func kindColor(kind analysis.Kind) *color.Color {
	switch kind {
	case analysis.KindSuccess:
		return color.New(color.FgGreen)
	case analysis.KindWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

func kindIcon(kind analysis.Kind) string {
	switch kind {
	case analysis.KindSuccess:
		return "✓"
	case analysis.KindWarning:
		return "!"
	default:
		return "•"
	}
}
