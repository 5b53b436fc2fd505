package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"mocacore/pkg/domain"
)

// Submission is one scored section delivered to the aggregator.
type Submission struct {
	Section              string
	RawScore             float64
	RequiresManualReview bool
}

// Snapshot is the full aggregate state produced by one Apply.
type Snapshot struct {
	domain.SessionScores
	UpdatedAt time.Time
}

// Aggregator folds submissions into session aggregates.
type Aggregator struct {
	now func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock overrides the timestamp source used for UpdatedAt.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAggregator constructs an aggregator using the wall clock in UTC.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply folds one submission into prev and returns the next snapshot. prev is
// never modified. Unknown sections fail before any state is derived.
func (a *Aggregator) Apply(prev domain.SessionScores, sub Submission) (Snapshot, error) {
	next, err := fold(prev, sub)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{SessionScores: next, UpdatedAt: a.now()}, nil
}

func fold(prev domain.SessionScores, sub Submission) (domain.SessionScores, error) {
	section, err := Lookup(sub.Section)
	if err != nil {
		return domain.SessionScores{}, err
	}
	bucket := buckets[bucketIndex[section.Bucket]]
	// rounded on entry; later sums never feed back into inputs
	score := round2(clamp(sub.RawScore, section.MaxPoints))

	next := CloneScores(prev)
	if section.Composite() {
		subs := next.SubsectionScores[bucket.Name]
		if subs == nil {
			subs = make(map[string]float64, len(bucket.SubKeys))
			next.SubsectionScores[bucket.Name] = subs
		}
		subs[section.SubKey] = score
		var sum float64
		for _, v := range subs {
			sum += clamp(v, bucket.MaxPoints)
		}
		next.SectionScores[bucket.Name] = round2(math.Min(sum, bucket.MaxPoints))
	} else {
		delete(next.SubsectionScores, bucket.Name)
		next.SectionScores[bucket.Name] = score
	}

	if !next.IsCompleted(bucket.Name) && bucketComplete(bucket, next.SubsectionScores[bucket.Name]) {
		next.CompletedSections = append(next.CompletedSections, bucket.Name)
		sortBuckets(next.CompletedSections)
	}

	next.TotalScore = round2(Total(next.SectionScores))
	if label, ok := Interpret(next.TotalScore); ok {
		next.Interpretation = label
	} else {
		next.Interpretation = ""
	}
	next.RequiresManualReview = prev.RequiresManualReview || sub.RequiresManualReview
	return next, nil
}

func bucketComplete(bucket Bucket, observed map[string]float64) bool {
	if !bucket.Composite() {
		return true
	}
	for _, key := range bucket.SubKeys {
		if _, ok := observed[key]; !ok {
			return false
		}
	}
	return true
}

// CloneScores deep copies an aggregate, normalising nil maps so partially
// initialised sessions behave as empty ones.
func CloneScores(in domain.SessionScores) domain.SessionScores {
	out := in
	out.SectionScores = make(map[string]float64, len(in.SectionScores))
	for k, v := range in.SectionScores {
		out.SectionScores[k] = v
	}
	out.SubsectionScores = make(map[string]map[string]float64, len(in.SubsectionScores))
	for bucket, subs := range in.SubsectionScores {
		if subs == nil {
			continue
		}
		cp := make(map[string]float64, len(subs))
		for k, v := range subs {
			cp[k] = v
		}
		out.SubsectionScores[bucket] = cp
	}
	out.CompletedSections = append([]string{}, in.CompletedSections...)
	return out
}

// Drift lists the aggregate fields that differ between two snapshots. The
// review flag is excluded because administrators may clear it.
func Drift(stored, derived domain.SessionScores) []string {
	var fields []string
	if !equalScores(stored.SectionScores, derived.SectionScores) {
		fields = append(fields, "section_scores")
	}
	if !equalSubscores(stored.SubsectionScores, derived.SubsectionScores) {
		fields = append(fields, "subsection_scores")
	}
	if !equalSet(stored.CompletedSections, derived.CompletedSections) {
		fields = append(fields, "completed_sections")
	}
	if stored.TotalScore != derived.TotalScore {
		fields = append(fields, "total_score")
	}
	if stored.Interpretation != derived.Interpretation {
		fields = append(fields, "interpretation")
	}
	return fields
}

func equalScores(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func equalSubscores(a, b map[string]map[string]float64) bool {
	nonEmpty := func(m map[string]map[string]float64) int {
		n := 0
		for _, subs := range m {
			if len(subs) > 0 {
				n++
			}
		}
		return n
	}
	if nonEmpty(a) != nonEmpty(b) {
		return false
	}
	for k, subs := range a {
		if len(subs) == 0 {
			continue
		}
		if !equalScores(subs, b[k]) {
			return false
		}
	}
	return true
}

func equalSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Replay rebuilds an aggregate from zero by applying results in sequence
// order, then creation time, then id. UpdatedAt is the creation time of the
// last result applied.
func (a *Aggregator) Replay(results []domain.SectionResult) (Snapshot, error) {
	ordered := append([]domain.SectionResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sequence != ordered[j].Sequence {
			return ordered[i].Sequence < ordered[j].Sequence
		}
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})
	snap := Snapshot{SessionScores: CloneScores(domain.SessionScores{})}
	for _, res := range ordered {
		next, err := fold(snap.SessionScores, Submission{
			Section:              res.SectionName,
			RawScore:             res.RawScore,
			RequiresManualReview: res.RequiresManualReview,
		})
		if err != nil {
			return Snapshot{}, fmt.Errorf("replay result %s: %w", res.ID, err)
		}
		snap = Snapshot{SessionScores: next, UpdatedAt: res.CreatedAt}
	}
	return snap, nil
}
