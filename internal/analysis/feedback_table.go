package analysis

import "fmt"

// Feedback is one observation/tip pair from the feedback table.
type Feedback struct {
	Observation string
	Tip         string
}

// feedbackTable is indexed by category, then severity index (0 = High, 2 = Low).
var feedbackTable = [len(Categories)][3]Feedback{
	Posture: {
		{
			Observation: "Excellent upright position maintained throughout.",
			Tip:         "Keep up the great posture! Try varying your stance occasionally.",
		},
		{
			Observation: "Generally good posture with occasional slouching.",
			Tip:         "Practice standing straight while presenting. Set reminders to check your posture.",
		},
		{
			Observation: "Frequent shifting and inconsistent posture noticed.",
			Tip:         "Focus on keeping your shoulders back and spine straight. Consider recording practice sessions.",
		},
	},
	Confidence: {
		{
			Observation: "Strong, assured presence throughout the presentation.",
			Tip:         "Continue building on your confident delivery. Try new presentation techniques.",
		},
		{
			Observation: "Showed confidence with room for improvement.",
			Tip:         "Take deep breaths before speaking. Practice power poses before presentations.",
		},
		{
			Observation: "Signs of nervousness apparent in delivery.",
			Tip:         "Start with small group presentations to build confidence. Record and review your presentations.",
		},
	},
	EyeContact: {
		{
			Observation: "Consistent and engaging eye contact maintained.",
			Tip:         "Excellent eye contact! Try varying your gaze pattern more.",
		},
		{
			Observation: "Moderate eye contact with occasional avoidance.",
			Tip:         "Practice maintaining eye contact for longer periods. Use the triangle technique.",
		},
		{
			Observation: "Limited eye contact, often looking away.",
			Tip:         "Focus on looking at different areas of your audience. Practice with friends.",
		},
	},
}

// Lookup returns the feedback for a category at a severity index. An unknown
// category or an index outside 0..2 is a programming error and panics.
func Lookup(c Category, severityIndex int) Feedback {
	if c < 0 || int(c) >= len(feedbackTable) {
		panic(fmt.Sprintf("analysis: unknown category %d", int(c)))
	}
	if severityIndex < 0 || severityIndex > 2 {
		panic(fmt.Sprintf("analysis: severity index %d out of range", severityIndex))
	}
	return feedbackTable[c][severityIndex]
}
