package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// PostgresMetadataStore implements pipeline.DocumentMetadataReader and
// pipeline.ChunkEmbeddingsReader against the documents and
// document_chunks tables.
type PostgresMetadataStore struct {
	pool *pgxpool.Pool
}

// NewPostgresMetadataStore creates a PostgresMetadataStore.
func NewPostgresMetadataStore(pool *pgxpool.Pool) *PostgresMetadataStore {
	return &PostgresMetadataStore{pool: pool}
}

var (
	_ pipeline.DocumentMetadataReader = (*PostgresMetadataStore)(nil)
	_ pipeline.ChunkEmbeddingsReader  = (*PostgresMetadataStore)(nil)
)

// GetDocument loads a document's vector summary. A document with no
// centroid yet (still ingesting) comes back with a nil
// CentroidEmbedding, which the pipeline treats as "not ready" unless
// the caller supplies an override vector.
func (s *PostgresMetadataStore) GetDocument(ctx context.Context, id string) (pipeline.DocumentSummary, error) {
	var (
		summary  pipeline.DocumentSummary
		centroid *pgvector.Vector
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, centroid_embedding, effective_chunk_count, total_characters,
		       page_count, title, filename, embedding_model
		FROM documents
		WHERE id = $1`, id,
	).Scan(
		&summary.ID, &centroid, &summary.EffectiveChunkCount, &summary.TotalCharacters,
		&summary.PageCount, &summary.Title, &summary.Filename, &summary.EmbeddingModel,
	)
	if err != nil {
		return pipeline.DocumentSummary{}, fmt.Errorf("repository.GetDocument: %w", err)
	}

	if centroid != nil {
		summary.CentroidEmbedding = centroid.Slice()
	}
	return summary, nil
}

// UpdateCentroid stores a document's centroid, chunk count and total
// characters after ingestion finishes. It is the one write path in this
// package; the core itself never writes.
func (s *PostgresMetadataStore) UpdateCentroid(ctx context.Context, documentID string, centroid []float32, effectiveChunkCount, totalCharacters int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE documents
		SET centroid_embedding = $2, effective_chunk_count = $3, total_characters = $4
		WHERE id = $1`,
		documentID, pgvector.NewVector(centroid), effectiveChunkCount, totalCharacters,
	)
	if err != nil {
		return fmt.Errorf("repository.UpdateCentroid: %w", err)
	}
	return nil
}
