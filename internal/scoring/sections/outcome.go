// Package sections holds the per-test scoring heuristics. Each scorer is a
// pure function returning an Outcome that the recorder feeds to the
// aggregator; the aggregator never looks at Details.
package sections

import "mocacore/internal/scoring"

// reviewThreshold is the confidence below which a result needs a human.
const reviewThreshold = 0.7

// Outcome is the scored form of one section submission.
type Outcome struct {
	Section              string         `json:"section"`
	Score                float64        `json:"score"`
	MaxScore             float64        `json:"max_score"`
	Confidence           float64        `json:"confidence"`
	RequiresManualReview bool           `json:"requires_manual_review"`
	Details              map[string]any `json:"details"`
}

func newOutcome(section string, score, confidence float64, details map[string]any) Outcome {
	maxScore := 0.0
	if s, err := scoring.Lookup(section); err == nil {
		maxScore = s.MaxPoints
	}
	if details == nil {
		details = map[string]any{}
	}
	return Outcome{
		Section:              section,
		Score:                score,
		MaxScore:             maxScore,
		Confidence:           confidence,
		RequiresManualReview: confidence < reviewThreshold,
		Details:              details,
	}
}
