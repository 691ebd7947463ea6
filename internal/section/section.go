// Package section groups matched chunk pairs into contiguous page
// ranges and classifies each range's reuse risk, so an analyst sees
// "pages 4-9 are a near-verbatim reuse" instead of a flat list of
// chunk pairs.
package section

import (
	"fmt"
	"sort"
)

// Match is the minimal view of a matched pair the grouper needs.
type Match struct {
	SourcePage int
	TargetPage int
	Score      float64
}

// Section is a contiguous run of matches, reported as page ranges on
// both sides of the comparison.
type Section struct {
	SourcePageStart int
	SourcePageEnd   int
	TargetPageStart int
	TargetPageEnd   int
	MatchCount      int
	AverageScore    float64
	Classification  Classification
}

// Options configures grouping.
type Options struct {
	// MaxPageGap is the largest difference between consecutive source
	// pages that still counts as contiguous. Defaults to 1: matches on
	// the same or adjacent pages group together, and a skipped page
	// starts a new section.
	MaxPageGap int
}

// DefaultOptions returns the default: consecutive source pages at most
// one apart count as the same section.
func DefaultOptions() Options {
	return Options{MaxPageGap: 1}
}

// Classification buckets a section's reuse risk by average score.
type Classification string

const (
	Reusable    Classification = "reusable"
	NeedsReview Classification = "needs_review"
	LowSimilarity Classification = "low_similarity"
)

// Classify maps an average match score to a reuse classification.
func Classify(averageScore float64) Classification {
	switch {
	case averageScore > 0.85:
		return Reusable
	case averageScore >= 0.65:
		return NeedsReview
	default:
		return LowSimilarity
	}
}

// Detect sweeps matches sorted by source page and groups runs whose
// page gap does not exceed opts.MaxPageGap into sections.
func Detect(matches []Match, opts Options) ([]Section, error) {
	if opts.MaxPageGap < 0 {
		return nil, fmt.Errorf("section.Detect: MaxPageGap must be >= 0, got %d", opts.MaxPageGap)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SourcePage < sorted[j].SourcePage })

	var sections []Section
	run := []Match{sorted[0]}

	flush := func() {
		sections = append(sections, buildSection(run))
	}

	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].SourcePage - run[len(run)-1].SourcePage
		if gap <= opts.MaxPageGap {
			run = append(run, sorted[i])
			continue
		}
		flush()
		run = []Match{sorted[i]}
	}
	flush()

	return sections, nil
}

// buildSection summarizes a contiguous run of matches into one section.
func buildSection(run []Match) Section {
	srcMin, srcMax := run[0].SourcePage, run[0].SourcePage
	tgtMin, tgtMax := run[0].TargetPage, run[0].TargetPage
	var scoreSum float64

	for _, m := range run {
		if m.SourcePage < srcMin {
			srcMin = m.SourcePage
		}
		if m.SourcePage > srcMax {
			srcMax = m.SourcePage
		}
		if m.TargetPage < tgtMin {
			tgtMin = m.TargetPage
		}
		if m.TargetPage > tgtMax {
			tgtMax = m.TargetPage
		}
		scoreSum += m.Score
	}

	avg := scoreSum / float64(len(run))

	return Section{
		SourcePageStart: srcMin,
		SourcePageEnd:   srcMax,
		TargetPageStart: tgtMin,
		TargetPageEnd:   tgtMax,
		MatchCount:      len(run),
		AverageScore:    avg,
		Classification:  Classify(avg),
	}
}

// FormatRange renders a page range the way analysts expect: a single
// number when the range collapses to one page, "start-end" otherwise.
func FormatRange(start, end int) string {
	if start == end {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d-%d", start, end)
}
