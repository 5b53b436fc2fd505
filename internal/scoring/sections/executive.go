package sections

import (
	"strings"

	"mocacore/internal/scoring"
)

// TrailPath is the alternating number/letter order a correct trail follows.
var TrailPath = []string{"1", "A", "2", "B", "3", "C", "4", "D", "5", "E"}

// TrailMaking awards the point only for the exact path with no crossings.
// Confidence reflects how close the attempt came.
func TrailMaking(path []string, crossingErrors int) Outcome {
	sequenceCorrect := len(path) == len(TrailPath)
	if sequenceCorrect {
		for i, node := range path {
			if !strings.EqualFold(strings.TrimSpace(node), TrailPath[i]) {
				sequenceCorrect = false
				break
			}
		}
	}
	noCrossings := crossingErrors == 0

	var score, confidence float64
	switch {
	case sequenceCorrect && noCrossings:
		score, confidence = 1, 1.0
	case sequenceCorrect:
		confidence = 0.8
	case len(path) == len(TrailPath):
		confidence = 0.6
	default:
		confidence = 0.4
	}
	return newOutcome(scoring.SectionTrailMaking, score, confidence, map[string]any{
		"crossing_errors":  crossingErrors,
		"sequence_correct": sequenceCorrect,
	})
}

// AbstractionAnswer is one similarity pair judged by the examiner.
type AbstractionAnswer struct {
	Pair    string `json:"pair"`
	Answer  string `json:"answer"`
	Correct bool   `json:"correct"`
}

// Abstraction counts correct answers.
func Abstraction(answers []AbstractionAnswer) Outcome {
	var score float64
	for _, a := range answers {
		if a.Correct {
			score++
		}
	}
	return newOutcome(scoring.SectionAbstraction, score, 1.0, map[string]any{
		"responses": answers,
	})
}
