package domain

import "testing"

func TestClassifyEducationLevel(t *testing.T) {
	cases := []struct {
		years int
		want  EducationLevel
	}{
		{0, EducationNotEducated},
		{-2, EducationNotEducated},
		{1, EducationBasicSchooling},
		{12, EducationBasicSchooling},
		{13, EducationCollegeLevel},
		{30, EducationCollegeLevel},
	}
	for _, tc := range cases {
		if got := ClassifyEducationLevel(tc.years); got != tc.want {
			t.Fatalf("ClassifyEducationLevel(%d) = %s, want %s", tc.years, got, tc.want)
		}
	}
}

func TestQualifiesForAdjustment(t *testing.T) {
	if EducationCollegeLevel.QualifiesForAdjustment() {
		t.Fatalf("college level must not receive the adjustment")
	}
	if !EducationBasicSchooling.QualifiesForAdjustment() || !EducationNotEducated.QualifiesForAdjustment() {
		t.Fatalf("expected adjustment below college level")
	}
	if !EducationLevel("").QualifiesForAdjustment() {
		t.Fatalf("unknown level falls back to the adjustment")
	}
}
