package scoring

import "math"

// Total clamps every registry bucket to [0, max], sums them and clamps the
// sum to [0, MaxTotal]. Absent, unknown and non-finite entries contribute 0.
func Total(sectionScores map[string]float64) float64 {
	var sum float64
	for _, b := range buckets {
		sum += clamp(sectionScores[b.Name], b.MaxPoints)
	}
	return clamp(sum, MaxTotal)
}

func clamp(v, max float64) float64 {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
		return 0
	case v > max:
		return max
	default:
		return v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
