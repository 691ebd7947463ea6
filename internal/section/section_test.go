package section

import "testing"

func TestDetect_GroupsContiguousPages(t *testing.T) {
	matches := []Match{
		{SourcePage: 1, TargetPage: 1, Score: 0.9},
		{SourcePage: 2, TargetPage: 2, Score: 0.9},
		{SourcePage: 3, TargetPage: 3, Score: 0.9},
		{SourcePage: 10, TargetPage: 10, Score: 0.9},
	}
	sections, err := Detect(matches, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].SourcePageStart != 1 || sections[0].SourcePageEnd != 3 {
		t.Errorf("first section range = %d-%d, want 1-3", sections[0].SourcePageStart, sections[0].SourcePageEnd)
	}
	if sections[1].SourcePageStart != 10 || sections[1].SourcePageEnd != 10 {
		t.Errorf("second section range = %d-%d, want 10-10", sections[1].SourcePageStart, sections[1].SourcePageEnd)
	}
}

func TestDetect_OnePageGapStillContiguous(t *testing.T) {
	matches := []Match{
		{SourcePage: 1, TargetPage: 1, Score: 0.9},
		{SourcePage: 3, TargetPage: 3, Score: 0.9},
	}
	sections, err := Detect(matches, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected 1 section (gap of 1 page), got %d", len(sections))
	}
}

func TestDetect_EmptyInput(t *testing.T) {
	sections, err := Detect(nil, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sections != nil {
		t.Errorf("expected nil sections for empty input, got %v", sections)
	}
}

func TestDetect_UnsortedInputIsSorted(t *testing.T) {
	matches := []Match{
		{SourcePage: 5, TargetPage: 5, Score: 0.9},
		{SourcePage: 1, TargetPage: 1, Score: 0.9},
	}
	sections, err := Detect(matches, Options{MaxPageGap: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].SourcePageStart != 1 {
		t.Errorf("expected sections ordered by page, got first = %d", sections[0].SourcePageStart)
	}
}

func TestClassify_Thresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  Classification
	}{
		{0.9, Reusable},
		{0.86, Reusable},
		{0.85, NeedsReview},
		{0.65, NeedsReview},
		{0.64, LowSimilarity},
		{0.1, LowSimilarity},
	}
	for _, c := range cases {
		if got := Classify(c.score); got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestFormatRange(t *testing.T) {
	if got := FormatRange(4, 4); got != "4" {
		t.Errorf("FormatRange(4,4) = %q, want %q", got, "4")
	}
	if got := FormatRange(4, 9); got != "4-9" {
		t.Errorf("FormatRange(4,9) = %q, want %q", got, "4-9")
	}
}
