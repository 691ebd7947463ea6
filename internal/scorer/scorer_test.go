package scorer

import "testing"

func TestScore_FullCoverageBothSides(t *testing.T) {
	pairs := []MatchedPair{
		{Source: MatchedChunk{"a1", 500}, Target: MatchedChunk{"b1", 500}, Score: 0.95},
		{Source: MatchedChunk{"a2", 500}, Target: MatchedChunk{"b2", 500}, Score: 0.95},
	}
	res, err := Score(pairs, 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SourceScore != 1 || res.TargetScore != 1 {
		t.Errorf("expected full coverage, got source=%v target=%v", res.SourceScore, res.TargetScore)
	}
}

func TestScore_AsymmetricCoverage(t *testing.T) {
	// a short doc (1000 chars) fully contained inside a long one (10000 chars).
	pairs := []MatchedPair{
		{Source: MatchedChunk{"a1", 1000}, Target: MatchedChunk{"b1", 1000}, Score: 0.95},
	}
	res, err := Score(pairs, 1000, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SourceScore != 1 {
		t.Errorf("SourceScore = %v, want 1", res.SourceScore)
	}
	if res.TargetScore != 0.1 {
		t.Errorf("TargetScore = %v, want 0.1", res.TargetScore)
	}
	if res.OverallScore != 0.55 {
		t.Errorf("OverallScore = %v, want 0.55", res.OverallScore)
	}
}

func TestScore_DuplicateChunkNotDoubleCounted(t *testing.T) {
	pairs := []MatchedPair{
		{Source: MatchedChunk{"a1", 500}, Target: MatchedChunk{"b1", 500}, Score: 0.9},
		{Source: MatchedChunk{"a1", 500}, Target: MatchedChunk{"b2", 500}, Score: 0.85},
	}
	res, err := Score(pairs, 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MatchedCharsSource != 500 {
		t.Errorf("MatchedCharsSource = %d, want 500 (deduped)", res.MatchedCharsSource)
	}
	if res.MatchedCharsTarget != 1000 {
		t.Errorf("MatchedCharsTarget = %d, want 1000", res.MatchedCharsTarget)
	}
}

func TestScore_RejectsNonPositiveTotals(t *testing.T) {
	if _, err := Score(nil, 0, 100); err == nil {
		t.Fatal("expected error for zero total characters")
	}
}

func TestScore_EmptyPairs(t *testing.T) {
	res, err := Score(nil, 1000, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OverallScore != 0 {
		t.Errorf("OverallScore = %v, want 0", res.OverallScore)
	}
}
