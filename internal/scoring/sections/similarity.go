package sections

import (
	"math"
	"strings"
)

// Ratio scores two strings in [0, 1] as (lensum - d) / lensum, where d is
// the insertion/deletion edit distance (a substitution costs two). The result
// is rounded to two decimals. Empty input on either side scores 0.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	lensum := len(ra) + len(rb)
	d := indelDistance(ra, rb)
	return math.Round(100*float64(lensum-d)/float64(lensum)) / 100
}

// indelDistance is levenshtein with substitution weighted 2, computed with two
// rolling rows.
func indelDistance(a, b []rune) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for i := range prev {
		prev[i] = i
	}
	for j := 1; j <= len(b); j++ {
		curr[0] = j
		for i := 1; i <= len(a); i++ {
			if a[i-1] == b[j-1] {
				curr[i] = prev[i-1]
				continue
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+2)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
