package sections

import (
	"strconv"
	"strings"
	"time"

	"mocacore/internal/scoring"
)

// OrientationAnswer holds the spoken orientation answers.
type OrientationAnswer struct {
	Date      string `json:"date"`
	Month     string `json:"month"`
	Year      string `json:"year"`
	DayOfWeek string `json:"day_of_week"`
	City      string `json:"city"`
}

// OrientationCheck is the per-field verdict.
type OrientationCheck struct {
	DateCorrect  bool `json:"date_correct"`
	MonthCorrect bool `json:"month_correct"`
	YearCorrect  bool `json:"year_correct"`
	DayCorrect   bool `json:"day_correct"`
	CityCorrect  bool `json:"city_correct"`
}

// Points counts correct fields.
func (c OrientationCheck) Points() int {
	n := 0
	for _, ok := range []bool{c.DateCorrect, c.MonthCorrect, c.YearCorrect, c.DayCorrect, c.CityCorrect} {
		if ok {
			n++
		}
	}
	return n
}

// CheckOrientation compares the answers with now. Months match by number or
// name. With no expectedCity any non-empty city is accepted.
func CheckOrientation(ans OrientationAnswer, now time.Time, expectedCity string) OrientationCheck {
	month := normalize(ans.Month)
	city := normalize(ans.City)
	check := OrientationCheck{
		DateCorrect:  numberMatches(ans.Date, now.Day()),
		MonthCorrect: numberMatches(month, int(now.Month())) || month == strings.ToLower(now.Month().String()),
		YearCorrect:  numberMatches(ans.Year, now.Year()),
		DayCorrect:   normalize(ans.DayOfWeek) == strings.ToLower(now.Weekday().String()),
	}
	if expectedCity == "" {
		check.CityCorrect = city != ""
	} else {
		check.CityCorrect = city == normalize(expectedCity)
	}
	return check
}

// Orientation scores one point per correct field.
func Orientation(ans OrientationAnswer, now time.Time, expectedCity string) Outcome {
	check := CheckOrientation(ans, now, expectedCity)
	return newOutcome(scoring.SectionOrientation, float64(check.Points()), 1.0, map[string]any{
		"checks":       check,
		"reference_at": now.Format(time.RFC3339),
	})
}

func numberMatches(answer string, want int) bool {
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	return err == nil && n == want
}
