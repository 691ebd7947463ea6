package pipeline

import (
	"context"
	"sort"
	"testing"
	"time"
)

// fakeIndex is an in-memory VectorIndex: it scores every (document,
// chunk) pair against the query vector's cosine similarity assuming
// pre-normalized inputs, mirroring how a real ANN index behaves.
type fakeIndex struct {
	chunks map[string][]ChunkDescriptor // documentID -> chunks
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int, filters []Filter) ([]VectorHit, error) {
	excluded := map[string]bool{}
	included := map[string]bool{}
	var hasIncludeFilter bool

	for _, flt := range filters {
		if flt.Key != "document_id" {
			continue
		}
		switch flt.Op {
		case FilterNotEquals:
			excluded[flt.Value] = true
		case FilterEquals:
			hasIncludeFilter = true
			included[flt.Value] = true
		case FilterIn:
			hasIncludeFilter = true
			for _, v := range flt.Values {
				included[v] = true
			}
		}
	}

	var hits []VectorHit
	for docID, chunks := range f.chunks {
		if excluded[docID] {
			continue
		}
		if hasIncludeFilter && !included[docID] {
			continue
		}
		for _, c := range chunks {
			score := dot(vector, c.Embedding)
			hits = append(hits, VectorHit{ID: c.ID, Score: score, DocumentID: docID})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

type fakeMetaReader struct {
	docs map[string]DocumentSummary
}

func (f *fakeMetaReader) GetDocument(ctx context.Context, id string) (DocumentSummary, error) {
	d, ok := f.docs[id]
	if !ok {
		return DocumentSummary{}, errNotFound(id)
	}
	return d, nil
}

type fakeChunkReader struct {
	chunks map[string][]ChunkDescriptor
	delay  map[string]time.Duration
}

func (f *fakeChunkReader) ListChunkEmbeddings(ctx context.Context, documentID string, pageRange *PageRange, pageSize, offset int) (ChunkPage, error) {
	if d, ok := f.delay[documentID]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ChunkPage{}, ctx.Err()
		}
	}

	all := f.chunks[documentID]
	var scoped []ChunkDescriptor
	for _, c := range all {
		if pageRange != nil && (c.PageNumber < pageRange.Start || c.PageNumber > pageRange.End) {
			continue
		}
		scoped = append(scoped, c)
	}

	if offset >= len(scoped) {
		return ChunkPage{HasMore: false}, nil
	}
	end := offset + pageSize
	if end > len(scoped) {
		end = len(scoped)
	}
	return ChunkPage{Chunks: scoped[offset:end], HasMore: end < len(scoped)}, nil
}

type notFoundError struct{ id string }

func (e notFoundError) Error() string { return "document not found: " + e.id }

func errNotFound(id string) error { return notFoundError{id} }

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestExecuteSimilaritySearch_IdenticalDocuments(t *testing.T) {
	sourceChunks := []ChunkDescriptor{
		{ID: "a-1", Index: 0, PageNumber: 1, CharacterCount: 1000, Embedding: unitVec(2, 0)},
		{ID: "a-2", Index: 1, PageNumber: 1, CharacterCount: 1000, Embedding: unitVec(2, 1)},
	}
	candidateChunks := []ChunkDescriptor{
		{ID: "b-1", Index: 0, PageNumber: 1, CharacterCount: 1000, Embedding: unitVec(2, 0)},
		{ID: "b-2", Index: 1, PageNumber: 1, CharacterCount: 1000, Embedding: unitVec(2, 1)},
	}

	index := &fakeIndex{chunks: map[string][]ChunkDescriptor{
		"source": sourceChunks,
		"target": candidateChunks,
	}}
	metaReader := &fakeMetaReader{docs: map[string]DocumentSummary{
		"source": {ID: "source", CentroidEmbedding: unitVec(2, 0), EffectiveChunkCount: 2, TotalCharacters: 2000},
		"target": {ID: "target", CentroidEmbedding: unitVec(2, 0), EffectiveChunkCount: 2, TotalCharacters: 2000},
	}}
	chunkReader := &fakeChunkReader{chunks: map[string][]ChunkDescriptor{
		"source": sourceChunks,
		"target": candidateChunks,
	}}

	orch := NewOrchestrator(index, metaReader, chunkReader)
	out, err := orch.ExecuteSimilaritySearch(context.Background(), "source", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	r := out.Results[0]
	if r.Scores.SourceScore != 1 || r.Scores.TargetScore != 1 {
		t.Errorf("expected full coverage both sides, got source=%v target=%v", r.Scores.SourceScore, r.Scores.TargetScore)
	}
	if len(r.Sections) != 1 || !r.Sections[0].Reusable {
		t.Errorf("expected one reusable section, got %+v", r.Sections)
	}
}

func TestExecuteSimilaritySearch_SelfExclusion(t *testing.T) {
	sourceChunks := []ChunkDescriptor{
		{ID: "a-1", Index: 0, PageNumber: 1, CharacterCount: 2000, Embedding: unitVec(2, 0)},
	}
	index := &fakeIndex{chunks: map[string][]ChunkDescriptor{
		"source": sourceChunks,
	}}
	metaReader := &fakeMetaReader{docs: map[string]DocumentSummary{
		"source": {ID: "source", CentroidEmbedding: unitVec(2, 0), EffectiveChunkCount: 1, TotalCharacters: 2000},
	}}
	chunkReader := &fakeChunkReader{chunks: map[string][]ChunkDescriptor{"source": sourceChunks}}

	orch := NewOrchestrator(index, metaReader, chunkReader)

	opts := Options{Stage0Filters: []Filter{{Key: "document_id", Op: FilterEquals, Value: "source"}}}
	out, err := orch.ExecuteSimilaritySearch(context.Background(), "source", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Stages.Stage0Candidates != 0 {
		t.Errorf("expected zero candidates from self-intersecting filter, got %d", out.Stages.Stage0Candidates)
	}
	if len(out.Results) != 0 {
		t.Errorf("expected zero results, got %d", len(out.Results))
	}
}

func TestExecuteSimilaritySearch_MissingCentroidIsFatal(t *testing.T) {
	sourceChunks := []ChunkDescriptor{
		{ID: "a-1", Index: 0, PageNumber: 1, CharacterCount: 2000, Embedding: unitVec(2, 0)},
	}
	index := &fakeIndex{chunks: map[string][]ChunkDescriptor{}}
	metaReader := &fakeMetaReader{docs: map[string]DocumentSummary{
		"source": {ID: "source", TotalCharacters: 2000},
	}}
	chunkReader := &fakeChunkReader{chunks: map[string][]ChunkDescriptor{"source": sourceChunks}}

	orch := NewOrchestrator(index, metaReader, chunkReader)
	_, err := orch.ExecuteSimilaritySearch(context.Background(), "source", Options{})
	if err == nil {
		t.Fatal("expected fatal error for missing centroid")
	}
	fatalErr, ok := err.(*FatalError)
	if !ok {
		t.Fatalf("expected *FatalError, got %T", err)
	}
	if fatalErr.Stage != "stage0" {
		t.Errorf("Stage = %q, want %q", fatalErr.Stage, "stage0")
	}
}

func TestExecuteSimilaritySearch_CandidateTimeoutIsDropped(t *testing.T) {
	sourceChunks := []ChunkDescriptor{
		{ID: "a-1", Index: 0, PageNumber: 1, CharacterCount: 2000, Embedding: unitVec(2, 0)},
	}
	fastChunks := []ChunkDescriptor{
		{ID: "fast-1", Index: 0, PageNumber: 1, CharacterCount: 2000, Embedding: unitVec(2, 0)},
	}
	slowChunks := []ChunkDescriptor{
		{ID: "slow-1", Index: 0, PageNumber: 1, CharacterCount: 2000, Embedding: unitVec(2, 0)},
	}

	index := &fakeIndex{chunks: map[string][]ChunkDescriptor{
		"source": sourceChunks,
		"fast":   fastChunks,
		"slow":   slowChunks,
	}}
	metaReader := &fakeMetaReader{docs: map[string]DocumentSummary{
		"source": {ID: "source", CentroidEmbedding: unitVec(2, 0), EffectiveChunkCount: 1, TotalCharacters: 2000},
		"fast":   {ID: "fast", CentroidEmbedding: unitVec(2, 0), EffectiveChunkCount: 1, TotalCharacters: 2000},
		"slow":   {ID: "slow", CentroidEmbedding: unitVec(2, 0), EffectiveChunkCount: 1, TotalCharacters: 2000},
	}}
	chunkReader := &fakeChunkReader{
		chunks: map[string][]ChunkDescriptor{
			"source": sourceChunks,
			"fast":   fastChunks,
			"slow":   slowChunks,
		},
		delay: map[string]time.Duration{"slow": 200 * time.Millisecond},
	}

	orch := NewOrchestrator(index, metaReader, chunkReader)
	opts := Options{Stage2Timeout: 20 * time.Millisecond}
	out, err := orch.ExecuteSimilaritySearch(context.Background(), "source", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range out.Results {
		if r.Document.ID == "slow" {
			t.Fatal("expected slow candidate to be dropped by its per-candidate deadline")
		}
	}
	if len(out.Results) != 1 || out.Results[0].Document.ID != "fast" {
		t.Fatalf("expected only the fast candidate to survive, got %+v", out.Results)
	}
}

func TestResolveOptions_Defaults(t *testing.T) {
	resolved := ResolveOptions(Options{})
	if resolved.Stage0TopK != defaultStage0TopK {
		t.Errorf("Stage0TopK = %d, want %d", resolved.Stage0TopK, defaultStage0TopK)
	}
	if resolved.Stage2FallbackThreshold >= resolved.Stage2Threshold {
		t.Errorf("fallback threshold %v must stay below primary %v", resolved.Stage2FallbackThreshold, resolved.Stage2Threshold)
	}
	if !*resolved.Stage1Enabled || !*resolved.Stage2FallbackEnabled {
		t.Error("expected stage1 and fallback enabled by default")
	}
}

func TestStage1_PassThroughWhenUnderCapacity(t *testing.T) {
	candidateIDs := []string{"x", "y", "z"}
	result := passThrough(candidateIDs)
	if len(result.candidateIDs) != 3 {
		t.Fatalf("expected 3 passthrough candidates, got %d", len(result.candidateIDs))
	}
	for _, id := range candidateIDs {
		if result.matchCounts[id] != 0 {
			t.Errorf("expected zero-filled match count for %s, got %d", id, result.matchCounts[id])
		}
	}
}
