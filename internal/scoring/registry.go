// Package scoring folds per-section test results into a session aggregate.
//
// The registry, interpreter and total calculator are pure and share no
// mutable state, so they are safe for concurrent use. The aggregator derives
// every snapshot from its input and never mutates it.
//
// Scores are rounded to 2 decimals once, when a submission enters the
// aggregator. Bucket sums and totals are computed from those entry values and
// rounded again only where they are written, so the result does not depend on
// submission order.
package scoring

import (
	"sort"

	"mocacore/pkg/domain"
)

// MaxTotal is the instrument maximum.
const MaxTotal = 30.0

// Section names accepted by the registry.
const (
	SectionTrailMaking        = "trail_making"
	SectionCubeCopy           = "cube_copy"
	SectionClockDrawing       = "clock_drawing"
	SectionNaming             = "naming"
	SectionAttentionForward   = "attention_forward"
	SectionAttentionBackward  = "attention_backward"
	SectionAttentionVigilance = "attention_vigilance"
	SectionSentenceRepetition = "sentence_repetition"
	SectionVerbalFluency      = "verbal_fluency"
	SectionAbstraction        = "abstraction"
	SectionDelayedRecall      = "delayed_recall"
	SectionOrientation        = "orientation"
)

// Composite bucket names. Simple buckets share the name of their only section.
const (
	BucketAttention = "attention"
	BucketLanguage  = "language"
)

// Bucket is an aggregate scoring category.
type Bucket struct {
	Name      string
	MaxPoints float64
	// SubKeys lists the sub-scores a composite bucket expects. Empty for
	// simple buckets.
	SubKeys []string
}

// Composite reports whether the bucket is assembled from sub-keys.
func (b Bucket) Composite() bool { return len(b.SubKeys) > 0 }

// Section is a registry entry for one submitted test.
type Section struct {
	Name      string
	Bucket    string
	SubKey    string
	MaxPoints float64
}

// Composite reports whether the section feeds a sub-key of a composite bucket.
func (s Section) Composite() bool { return s.SubKey != "" }

var buckets = []Bucket{
	{Name: SectionTrailMaking, MaxPoints: 1},
	{Name: SectionCubeCopy, MaxPoints: 3},
	{Name: SectionClockDrawing, MaxPoints: 3},
	{Name: SectionNaming, MaxPoints: 3},
	{Name: BucketAttention, MaxPoints: 5, SubKeys: []string{"forward", "backward", "vigilance"}},
	{Name: BucketLanguage, MaxPoints: 4, SubKeys: []string{"sentence_repetition", "verbal_fluency"}},
	{Name: SectionAbstraction, MaxPoints: 2},
	{Name: SectionDelayedRecall, MaxPoints: 4},
	{Name: SectionOrientation, MaxPoints: 5},
}

var sectionOrder = []Section{
	{Name: SectionTrailMaking, Bucket: SectionTrailMaking, MaxPoints: 1},
	{Name: SectionCubeCopy, Bucket: SectionCubeCopy, MaxPoints: 3},
	{Name: SectionClockDrawing, Bucket: SectionClockDrawing, MaxPoints: 3},
	{Name: SectionNaming, Bucket: SectionNaming, MaxPoints: 3},
	{Name: SectionAttentionForward, Bucket: BucketAttention, SubKey: "forward", MaxPoints: 1},
	{Name: SectionAttentionBackward, Bucket: BucketAttention, SubKey: "backward", MaxPoints: 1},
	{Name: SectionAttentionVigilance, Bucket: BucketAttention, SubKey: "vigilance", MaxPoints: 3},
	{Name: SectionSentenceRepetition, Bucket: BucketLanguage, SubKey: "sentence_repetition", MaxPoints: 2},
	{Name: SectionVerbalFluency, Bucket: BucketLanguage, SubKey: "verbal_fluency", MaxPoints: 2},
	{Name: SectionAbstraction, Bucket: SectionAbstraction, MaxPoints: 2},
	{Name: SectionDelayedRecall, Bucket: SectionDelayedRecall, MaxPoints: 4},
	{Name: SectionOrientation, Bucket: SectionOrientation, MaxPoints: 5},
}

var (
	sectionIndex = indexSections(sectionOrder)
	bucketIndex  = indexBuckets(buckets)
)

func indexSections(list []Section) map[string]Section {
	out := make(map[string]Section, len(list))
	for _, s := range list {
		out[s.Name] = s
	}
	return out
}

func indexBuckets(list []Bucket) map[string]int {
	out := make(map[string]int, len(list))
	for i, b := range list {
		out[b.Name] = i
	}
	return out
}

// Lookup resolves a section name. Unregistered names fail with
// domain.UnknownSectionError.
func Lookup(name string) (Section, error) {
	section, ok := sectionIndex[name]
	if !ok {
		return Section{}, domain.UnknownSectionError{Section: name}
	}
	return section, nil
}

// LookupBucket resolves a bucket by name.
func LookupBucket(name string) (Bucket, bool) {
	idx, ok := bucketIndex[name]
	if !ok {
		return Bucket{}, false
	}
	return cloneBucket(buckets[idx]), true
}

// Buckets returns the registry buckets in display order.
func Buckets() []Bucket {
	out := make([]Bucket, len(buckets))
	for i, b := range buckets {
		out[i] = cloneBucket(b)
	}
	return out
}

// Sections returns the registry sections in display order.
func Sections() []Section {
	out := make([]Section, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

func cloneBucket(b Bucket) Bucket {
	if b.SubKeys != nil {
		b.SubKeys = append([]string(nil), b.SubKeys...)
	}
	return b
}

// sortBuckets orders bucket names by registry position. Names outside the
// registry sort last, alphabetically.
func sortBuckets(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		pi, iok := bucketIndex[names[i]]
		pj, jok := bucketIndex[names[j]]
		switch {
		case iok && jok:
			return pi < pj
		case iok:
			return true
		case jok:
			return false
		default:
			return names[i] < names[j]
		}
	})
}
