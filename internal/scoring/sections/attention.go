package sections

import (
	"slices"

	"mocacore/internal/scoring"
)

// DigitSpanForward scores an exact repetition of the digit sequence.
func DigitSpanForward(response, sequence []int) Outcome {
	correct := slices.Equal(response, sequence)
	return newOutcome(scoring.SectionAttentionForward, boolPoint(correct), 1.0, map[string]any{
		"correct": correct,
	})
}

// DigitSpanBackward scores a repetition of the sequence in reverse.
func DigitSpanBackward(response, sequence []int) Outcome {
	expected := slices.Clone(sequence)
	slices.Reverse(expected)
	correct := slices.Equal(response, expected)
	return newOutcome(scoring.SectionAttentionBackward, boolPoint(correct), 1.0, map[string]any{
		"correct": correct,
	})
}

// Vigilance compares tap positions against target positions. Misses plus
// false alarms set the score: up to one error earns 3, two 2, three 1.
func Vigilance(taps, targets []int) Outcome {
	tapSet := toSet(taps)
	targetSet := toSet(targets)
	var hits, misses, falseAlarms int
	for idx := range targetSet {
		if _, ok := tapSet[idx]; ok {
			hits++
		} else {
			misses++
		}
	}
	for idx := range tapSet {
		if _, ok := targetSet[idx]; !ok {
			falseAlarms++
		}
	}

	var score float64
	switch errs := misses + falseAlarms; {
	case errs <= 1:
		score = 3
	case errs == 2:
		score = 2
	case errs == 3:
		score = 1
	}
	return newOutcome(scoring.SectionAttentionVigilance, score, 1.0, map[string]any{
		"hits":         hits,
		"misses":       misses,
		"false_alarms": falseAlarms,
	})
}

func toSet(values []int) map[int]struct{} {
	out := make(map[int]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func boolPoint(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
