// Package scorer turns a set of matched chunk pairs into a directional
// coverage score: the share of each document's characters that landed
// in at least one surviving match, counted per unique chunk so
// overlapping matches never double-count a chunk's characters.
package scorer

import "fmt"

// MatchedChunk is the minimal view of a chunk the scorer needs.
type MatchedChunk struct {
	ID             string
	CharacterCount int
}

// MatchedPair is one surviving match between a source and target chunk.
type MatchedPair struct {
	Source MatchedChunk
	Target MatchedChunk
	Score  float64
}

// Result is the directional coverage outcome for a pair of documents.
type Result struct {
	SourceScore        float64
	TargetScore        float64
	OverallScore       float64
	MatchedCharsSource int
	MatchedCharsTarget int
}

// Score computes directional coverage for both sides of a match set.
// sourceScore and targetScore are each "matched unique characters /
// total characters" for that side; OverallScore is their average. This
// keeps the score symmetric-but-directional: a short document fully
// contained in a long one still scores low on the long side while
// scoring high on its own side.
func Score(pairs []MatchedPair, totalCharsSource, totalCharsTarget int) (Result, error) {
	if totalCharsSource <= 0 || totalCharsTarget <= 0 {
		return Result{}, fmt.Errorf("scorer.Score: total character counts must be positive, got source=%d target=%d", totalCharsSource, totalCharsTarget)
	}

	seenSource := make(map[string]int)
	seenTarget := make(map[string]int)
	for _, p := range pairs {
		seenSource[p.Source.ID] = p.Source.CharacterCount
		seenTarget[p.Target.ID] = p.Target.CharacterCount
	}

	matchedSource := sumValues(seenSource)
	matchedTarget := sumValues(seenTarget)

	sourceScore := float64(matchedSource) / float64(totalCharsSource)
	targetScore := float64(matchedTarget) / float64(totalCharsTarget)

	return Result{
		SourceScore:        clamp01(sourceScore),
		TargetScore:        clamp01(targetScore),
		OverallScore:       clamp01((sourceScore + targetScore) / 2),
		MatchedCharsSource: matchedSource,
		MatchedCharsTarget: matchedTarget,
	}, nil
}

func sumValues(m map[string]int) int {
	var total int
	for _, v := range m {
		total += v
	}
	return total
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
