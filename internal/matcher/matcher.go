// Package matcher implements bidirectional chunk matching: a per-direction
// best match with non-maximum suppression and tie-breaking, a
// lower-threshold reciprocal fallback pass, and a dynamic
// minimum-evidence filter that decides whether two documents have
// enough shared content to report a match at all.
package matcher

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/connexus-ai/docsim-core/internal/evidence"
	"github.com/connexus-ai/docsim-core/internal/vectormath"
)

// earlyBailSample is how many leading source chunks are checked before
// abandoning a direction with no above-threshold candidates at all.
const earlyBailSample = 40

// scoreTieEpsilon is the score delta within which two candidates are
// considered tied and the page-distance tie-break applies.
const scoreTieEpsilon = 1e-3

// ChunkDescriptor is the minimal view of a chunk the matcher needs.
type ChunkDescriptor struct {
	ID             string
	Index          int
	PageNumber     int
	CharacterCount int
	Embedding      []float32
}

// Match pairs one chunk from document A with one from document B.
type Match struct {
	ChunkA ChunkDescriptor
	ChunkB ChunkDescriptor
	Score  float64
}

// FallbackOptions configures the reciprocal fallback pass.
type FallbackOptions struct {
	Enabled          bool
	Threshold        float64
	TopK             int
	ProximityScore   float64
	MaxPageDistance  int
	MaxIndexDistance int
	MaxLengthRatio   float64
}

// Options configures a single Match call.
type Options struct {
	PrimaryThreshold float64
	Fallback         FallbackOptions
}

// DefaultOptions returns the documented default thresholds.
func DefaultOptions() Options {
	primary := 0.85
	return Options{
		PrimaryThreshold: primary,
		Fallback: FallbackOptions{
			Enabled:          true,
			Threshold:        ClampFallbackThreshold(primary, primary-0.15),
			TopK:             5,
			ProximityScore:   0.82,
			MaxPageDistance:  3,
			MaxIndexDistance: 5,
			MaxLengthRatio:   0.4,
		},
	}
}

// ClampFallbackThreshold enforces the fallback threshold invariant:
// it must be <= primary-0.01 and >= 0.5.
func ClampFallbackThreshold(primary, proposed float64) float64 {
	t := proposed
	if t > primary-0.01 {
		t = primary - 0.01
	}
	if t < 0.5 {
		t = 0.5
	}
	return t
}

// Match runs the full bidirectional matching pipeline and returns the
// surviving matches with an empty reason string. A non-empty reason
// with a nil error means "no match" for a benign cause (empty input,
// no matches above threshold, or insufficient evidence); only genuine
// input-contract violations return a non-nil error.
func Match(a, b []ChunkDescriptor, totalCharsA, totalCharsB int, opts Options) ([]Match, string, error) {
	if opts.PrimaryThreshold < 0 || opts.PrimaryThreshold > 1 {
		return nil, "", fmt.Errorf("matcher.Match: primary threshold %v out of [0,1]", opts.PrimaryThreshold)
	}
	if opts.Fallback.Enabled {
		if opts.Fallback.Threshold < 0 || opts.Fallback.Threshold > 1 {
			return nil, "", fmt.Errorf("matcher.Match: fallback threshold %v out of [0,1]", opts.Fallback.Threshold)
		}
	}
	if len(a) == 0 || len(b) == 0 {
		return nil, "empty input", nil
	}

	forward, err := directionalBest(a, b, opts.PrimaryThreshold)
	if err != nil {
		return nil, "", fmt.Errorf("matcher.Match: %w", err)
	}
	backward, err := directionalBest(b, a, opts.PrimaryThreshold)
	if err != nil {
		return nil, "", fmt.Errorf("matcher.Match: %w", err)
	}

	merged := dedupe(append(toForwardMatches(forward), toBackwardMatches(backward)...))

	if opts.Fallback.Enabled {
		matchedA, matchedB := matchedIDSets(merged)
		unmatchedA := unmatched(a, matchedA)
		unmatchedB := unmatched(b, matchedB)
		fb := reciprocalFallback(unmatchedA, unmatchedB, a, b, opts.Fallback)
		merged = dedupe(append(merged, fb...))
	}

	if len(merged) == 0 {
		return nil, "no matches above threshold", nil
	}

	matchedCharsA, matchedCharsB := matchedCharacterSums(merged)
	matchedChars := matchedCharsA
	if matchedCharsB < matchedChars {
		matchedChars = matchedCharsB
	}
	required := evidence.MinimumRequired(totalCharsA, totalCharsB)
	if matchedChars < required {
		return nil, "insufficient evidence", nil
	}

	return merged, "", nil
}

type directionalMatch struct {
	src   ChunkDescriptor
	tgt   ChunkDescriptor
	score float64
}

// directionalBest finds, for each source chunk, the single best target
// chunk scoring at or above threshold (NMS: at most one match per
// source chunk), tie-breaking on page-number proximity. It abandons the
// direction entirely (nil, nil) if the first min(40,|src|) source
// chunks produce zero above-threshold candidates.
func directionalBest(src, tgt []ChunkDescriptor, threshold float64) ([]directionalMatch, error) {
	sampleSize := earlyBailSample
	if len(src) < sampleSize {
		sampleSize = len(src)
	}

	foundInSample := false
	var results []directionalMatch

	for i, s := range src {
		type candidate struct {
			j     int
			score float64
		}
		var candidates []candidate

		for j, t := range tgt {
			if len(s.Embedding) != len(t.Embedding) {
				slog.Warn("matcher dimension mismatch, skipping pair", "chunk_a", s.ID, "chunk_b", t.ID)
				continue
			}
			score, err := vectormath.Dot(s.Embedding, t.Embedding)
			if err != nil {
				continue
			}
			if score >= threshold {
				candidates = append(candidates, candidate{j, score})
			}
		}

		if i < sampleSize && len(candidates) > 0 {
			foundInSample = true
		}
		if len(candidates) == 0 {
			continue
		}

		sort.SliceStable(candidates, func(x, y int) bool {
			if math.Abs(candidates[x].score-candidates[y].score) > scoreTieEpsilon {
				return candidates[x].score > candidates[y].score
			}
			dx := abs(s.PageNumber - tgt[candidates[x].j].PageNumber)
			dy := abs(s.PageNumber - tgt[candidates[y].j].PageNumber)
			return dx < dy
		})

		best := candidates[0]
		results = append(results, directionalMatch{src: s, tgt: tgt[best.j], score: best.score})
	}

	if sampleSize > 0 && !foundInSample {
		return nil, nil
	}
	return results, nil
}

func toForwardMatches(ds []directionalMatch) []Match {
	out := make([]Match, len(ds))
	for i, d := range ds {
		out[i] = Match{ChunkA: d.src, ChunkB: d.tgt, Score: d.score}
	}
	return out
}

// toBackwardMatches swaps orientation so chunkA is always from document A.
func toBackwardMatches(ds []directionalMatch) []Match {
	out := make([]Match, len(ds))
	for i, d := range ds {
		out[i] = Match{ChunkA: d.tgt, ChunkB: d.src, Score: d.score}
	}
	return out
}

type pairKey struct{ a, b string }

// dedupe sorts matches by score descending and collapses duplicate
// (idA,idB) pairs, keeping the higher score.
func dedupe(ms []Match) []Match {
	seen := make(map[pairKey]int, len(ms))
	out := make([]Match, 0, len(ms))
	for _, m := range ms {
		k := pairKey{m.ChunkA.ID, m.ChunkB.ID}
		if idx, ok := seen[k]; ok {
			if m.Score > out[idx].Score {
				out[idx].Score = m.Score
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func matchedIDSets(ms []Match) (a, b map[string]bool) {
	a = make(map[string]bool, len(ms))
	b = make(map[string]bool, len(ms))
	for _, m := range ms {
		a[m.ChunkA.ID] = true
		b[m.ChunkB.ID] = true
	}
	return
}

func unmatched(chunks []ChunkDescriptor, matched map[string]bool) []ChunkDescriptor {
	out := make([]ChunkDescriptor, 0, len(chunks))
	for _, c := range chunks {
		if !matched[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func matchedCharacterSums(ms []Match) (int, int) {
	seenA := make(map[string]int)
	seenB := make(map[string]int)
	for _, m := range ms {
		seenA[m.ChunkA.ID] = m.ChunkA.CharacterCount
		seenB[m.ChunkB.ID] = m.ChunkB.CharacterCount
	}
	var sumA, sumB int
	for _, c := range seenA {
		sumA += c
	}
	for _, c := range seenB {
		sumB += c
	}
	return sumA, sumB
}

// topKCandidates returns up to k target candidates for s scoring at or
// above threshold, sorted by score descending.
func topKCandidates(s ChunkDescriptor, targets []ChunkDescriptor, threshold float64, k int) []directionalMatch {
	var candidates []directionalMatch
	for _, t := range targets {
		if len(s.Embedding) != len(t.Embedding) {
			continue
		}
		score, err := vectormath.Dot(s.Embedding, t.Embedding)
		if err != nil || score < threshold {
			continue
		}
		candidates = append(candidates, directionalMatch{src: s, tgt: t, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// reciprocalFallback accepts an unmatched pair only if each is in the
// other's top-K at the fallback threshold, the minimum directional
// score clears the threshold, spatial proximity holds below the
// proximity score, and the pair's length ratio is within budget.
func reciprocalFallback(unmatchedA, unmatchedB, allA, allB []ChunkDescriptor, fb FallbackOptions) []Match {
	if !fb.Enabled {
		return nil
	}

	inUnmatchedB := make(map[string]bool, len(unmatchedB))
	for _, b := range unmatchedB {
		inUnmatchedB[b.ID] = true
	}

	var result []Match
	for _, a := range unmatchedA {
		aTopK := topKCandidates(a, allB, fb.Threshold, fb.TopK)
		for _, cand := range aTopK {
			b := cand.tgt
			if !inUnmatchedB[b.ID] {
				continue
			}

			bTopK := topKCandidates(b, allA, fb.Threshold, fb.TopK)
			var scoreBA float64
			reciprocal := false
			for _, c := range bTopK {
				if c.tgt.ID == a.ID {
					scoreBA = c.score
					reciprocal = true
					break
				}
			}
			if !reciprocal {
				continue
			}

			minScore := math.Min(cand.score, scoreBA)
			if minScore < fb.Threshold {
				continue
			}

			if minScore < fb.ProximityScore {
				pageOK := fb.MaxPageDistance > 0 && abs(a.PageNumber-b.PageNumber) <= fb.MaxPageDistance
				idxOK := fb.MaxIndexDistance > 0 && abs(a.Index-b.Index) <= fb.MaxIndexDistance
				if !pageOK && !idxOK {
					continue
				}
			}

			maxLen := math.Max(float64(a.CharacterCount), float64(b.CharacterCount))
			if maxLen > 0 {
				ratio := math.Abs(float64(a.CharacterCount-b.CharacterCount)) / maxLen
				if ratio > fb.MaxLengthRatio {
					continue
				}
			}

			result = append(result, Match{ChunkA: a, ChunkB: b, Score: (cand.score + scoreBA) / 2})
		}
	}
	return result
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
