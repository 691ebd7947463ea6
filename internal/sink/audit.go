package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// PostgresAuditSink records one row per result in similarity_evidence,
// giving analysts a queryable trail of what a search surfaced without
// re-running the pipeline.
type PostgresAuditSink struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditSink creates a PostgresAuditSink.
func NewPostgresAuditSink(pool *pgxpool.Pool) *PostgresAuditSink {
	return &PostgresAuditSink{pool: pool}
}

var _ ResultSink = (*PostgresAuditSink)(nil)

func (s *PostgresAuditSink) Write(ctx context.Context, sourceDocID string, result pipeline.SimilaritySearchResult) error {
	batch := make([][]interface{}, 0, len(result.Results))
	for _, r := range result.Results {
		batch = append(batch, []interface{}{
			sourceDocID, r.Document.ID, r.Scores.SourceScore, r.Scores.TargetScore, r.MatchedChunks,
		})
	}

	for _, row := range batch {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO similarity_evidence (source_doc_id, candidate_doc_id, source_score, target_score, matched_chunks)
			VALUES ($1, $2, $3, $4, $5)`,
			row...,
		)
		if err != nil {
			return fmt.Errorf("sink.PostgresAuditSink.Write: %w", err)
		}
	}
	return nil
}
