package sections

import (
	"strings"

	"mocacore/internal/scoring"
)

// Similarity thresholds.
const (
	namingThreshold   = 0.6
	recallThreshold   = 0.7
	repetitionFull    = 0.8
	repetitionPartial = 0.7
	fluencyTarget     = 11
	fluencyPoints     = 2.0
	fluencyConfidence = 0.8
	maxRecallWords    = 4
	minFluencyWordLen = 2
)

// NamingResponse pairs a pictured animal with the spoken answer.
type NamingResponse struct {
	Animal     string `json:"animal"`
	UserAnswer string `json:"user_answer"`
}

// Naming awards a point per answer within fuzzy distance of the animal.
func Naming(responses []NamingResponse) Outcome {
	var score float64
	items := make([]map[string]any, 0, len(responses))
	for _, r := range responses {
		animal, answer := normalize(r.Animal), normalize(r.UserAnswer)
		sim := Ratio(animal, answer)
		point := 0
		if sim >= namingThreshold {
			point = 1
			score++
		}
		items = append(items, map[string]any{
			"animal":      animal,
			"user_answer": answer,
			"similarity":  sim,
			"score":       point,
		})
	}
	return newOutcome(scoring.SectionNaming, score, 1.0, map[string]any{"individual_scores": items})
}

// SentenceAttempt pairs a prompt sentence with the repetition heard.
type SentenceAttempt struct {
	Original   string `json:"original"`
	UserAnswer string `json:"user_answer"`
}

// SentenceRepetition gives a full point at 0.8 similarity and half a point at
// 0.7. The section total is truncated to whole points.
func SentenceRepetition(attempts []SentenceAttempt) Outcome {
	var total float64
	items := make([]map[string]any, 0, len(attempts))
	for _, a := range attempts {
		original, answer := normalize(a.Original), normalize(a.UserAnswer)
		sim := Ratio(original, answer)
		var point float64
		switch {
		case sim >= repetitionFull:
			point = 1
		case sim >= repetitionPartial:
			point = 0.5
		}
		total += point
		items = append(items, map[string]any{
			"original":    original,
			"user_answer": answer,
			"similarity":  sim,
			"score":       point,
		})
	}
	return newOutcome(scoring.SectionSentenceRepetition, float64(int(total)), 1.0, map[string]any{
		"individual_scores": items,
	})
}

// VerbalFluency counts words beginning with F in a transcript. Eleven or more
// earn both points. Transcription is noisy, so confidence is fixed at 0.8.
func VerbalFluency(transcript string) Outcome {
	var fWords []string
	unique := map[string]struct{}{}
	for _, w := range strings.Fields(strings.ToLower(transcript)) {
		if len(w) >= minFluencyWordLen && strings.HasPrefix(w, "f") {
			fWords = append(fWords, w)
			unique[w] = struct{}{}
		}
	}
	var score float64
	if len(fWords) >= fluencyTarget {
		score = fluencyPoints
	}
	return newOutcome(scoring.SectionVerbalFluency, score, fluencyConfidence, map[string]any{
		"word_count":   len(fWords),
		"unique_words": len(unique),
	})
}

// DelayedRecall matches every original word against its best recalled
// candidate. Matches at 0.7 similarity score, capped at four.
func DelayedRecall(original, recalled []string) Outcome {
	candidates := make([]string, 0, len(recalled))
	for _, w := range recalled {
		candidates = append(candidates, normalize(w))
	}
	matches := make([]map[string]any, 0, len(original))
	score := 0
	for _, word := range original {
		word = normalize(word)
		var best string
		var bestSim float64
		for _, c := range candidates {
			if sim := Ratio(word, c); sim > bestSim {
				best, bestSim = c, sim
			}
		}
		matched := bestSim >= recallThreshold
		if matched {
			score++
		}
		matches = append(matches, map[string]any{
			"original":   word,
			"recalled":   best,
			"similarity": bestSim,
			"matched":    matched,
		})
	}
	if score > maxRecallWords {
		score = maxRecallWords
	}
	return newOutcome(scoring.SectionDelayedRecall, float64(score), 1.0, map[string]any{"matches": matches})
}
