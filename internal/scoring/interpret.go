package scoring

import (
	"math"

	"mocacore/pkg/domain"
)

// Interpretation band lower edges. Each edge belongs to the band above it.
const (
	normalFloor   = 26.0
	mildFloor     = 18.0
	moderateFloor = 10.0
)

// Interpret maps a total onto its band. Totals at or below zero have no
// interpretation and return ok=false.
func Interpret(total float64) (label domain.Interpretation, ok bool) {
	switch {
	case math.IsNaN(total) || total <= 0:
		return "", false
	case total >= normalFloor:
		return domain.InterpretationNormal, true
	case total >= mildFloor:
		return domain.InterpretationMild, true
	case total >= moderateFloor:
		return domain.InterpretationModerate, true
	default:
		return domain.InterpretationSevere, true
	}
}
