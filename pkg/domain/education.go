package domain

// EducationLevel classifies years of formal education.
type EducationLevel string

// Education levels used for the score report adjustment.
const (
	EducationNotEducated    EducationLevel = "not_educated"
	EducationBasicSchooling EducationLevel = "basic_schooling"
	EducationCollegeLevel   EducationLevel = "college_level"
)

// MaxEducationYears bounds the accepted education input.
const MaxEducationYears = 30

// ClassifyEducationLevel maps years of education onto a level:
// 0 years is not_educated, 1-12 basic_schooling, 13 and above college_level.
func ClassifyEducationLevel(years int) EducationLevel {
	switch {
	case years <= 0:
		return EducationNotEducated
	case years <= 12:
		return EducationBasicSchooling
	default:
		return EducationCollegeLevel
	}
}

// QualifiesForAdjustment reports whether the report adds the one point
// education correction for this level.
func (l EducationLevel) QualifiesForAdjustment() bool {
	return l != EducationCollegeLevel
}
