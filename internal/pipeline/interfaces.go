package pipeline

import "context"

// VectorHit is one ANN query result.
type VectorHit struct {
	ID         string
	Score      float64
	DocumentID string
}

// VectorIndex is the narrow "vector search" capability the pipeline
// consumes. Production is backed by pgvector; tests supply an
// in-memory fake.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int, filters []Filter) ([]VectorHit, error)
}

// DocumentMetadataReader is the narrow "document metadata" capability.
type DocumentMetadataReader interface {
	GetDocument(ctx context.Context, id string) (DocumentSummary, error)
}

// ChunkPage is one page of chunk-embedding results, ordered by
// chunkIndex ascending; callers may see duplicate chunkIndex values
// across retried pages and must deduplicate.
type ChunkPage struct {
	Chunks  []ChunkDescriptor
	HasMore bool
}

// ChunkEmbeddingsReader is the narrow "chunk embeddings" capability,
// paginated so large documents never load in one round trip.
type ChunkEmbeddingsReader interface {
	ListChunkEmbeddings(ctx context.Context, documentID string, pageRange *PageRange, pageSize, offset int) (ChunkPage, error)
}

// StageMetrics receives optional Stage-2 instrumentation hooks. A nil
// StageMetrics is valid everywhere one is accepted; callers that don't
// care about these counters simply never attach one.
type StageMetrics interface {
	// CandidateTimeout is called once per candidate abandoned for
	// exceeding its per-candidate deadline.
	CandidateTimeout()
	// InsufficientEvidence is called once per candidate the matcher
	// drops for failing the minimum-evidence gate.
	InsufficientEvidence()
}
