package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// PostgresVectorIndex implements pipeline.VectorIndex against the
// document_chunks table's pgvector HNSW index, using the `<=>` cosine
// distance operator. It serves both Stage-0 (queried with a document
// centroid) and Stage-1 (queried per source chunk) — the pipeline
// never distinguishes them at the interface level.
type PostgresVectorIndex struct {
	pool *pgxpool.Pool
}

// NewPostgresVectorIndex creates a PostgresVectorIndex.
func NewPostgresVectorIndex(pool *pgxpool.Pool) *PostgresVectorIndex {
	return &PostgresVectorIndex{pool: pool}
}

var _ pipeline.VectorIndex = (*PostgresVectorIndex)(nil)

// Query runs an ANN search for the topK chunks closest to vector,
// translating the tagged filter sum type (pipeline.Filter) into
// parameterized SQL clauses: equality, set membership (`= ANY`), and
// inequality.
func (x *PostgresVectorIndex) Query(ctx context.Context, vector []float32, topK int, filters []pipeline.Filter) ([]pipeline.VectorHit, error) {
	embedding := pgvector.NewVector(vector)

	var clauses []string
	args := []interface{}{embedding}

	for _, f := range filters {
		col := filterColumn(f.Key)
		switch f.Op {
		case pipeline.FilterEquals:
			args = append(args, f.Value)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
		case pipeline.FilterNotEquals:
			args = append(args, f.Value)
			clauses = append(clauses, fmt.Sprintf("%s <> $%d", col, len(args)))
		case pipeline.FilterIn:
			args = append(args, f.Values)
			clauses = append(clauses, fmt.Sprintf("%s = ANY($%d::text[])", col, len(args)))
		default:
			return nil, fmt.Errorf("repository.Query: unknown filter op %q", f.Op)
		}
	}

	query := `
		SELECT dc.id, dc.document_id, 1 - (dc.embedding <=> $1::vector) AS score
		FROM document_chunks dc`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY dc.embedding <=> $1::vector LIMIT $%d", len(args))

	rows, err := x.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.Query: %w", err)
	}
	defer rows.Close()

	var hits []pipeline.VectorHit
	for rows.Next() {
		var h pipeline.VectorHit
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.Score); err != nil {
			return nil, fmt.Errorf("repository.Query: scan: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.Query: %w", err)
	}
	return hits, nil
}

// filterColumn maps a logical filter key to its document_chunks (or
// joined documents) column. Only document_id is wired today; other
// keys pass through unchanged so future metadata columns don't require
// touching the translation layer.
func filterColumn(key string) string {
	if key == "document_id" {
		return "dc.document_id"
	}
	return key
}
