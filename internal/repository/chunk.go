package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// ListChunkEmbeddings returns one page of a document's chunk
// embeddings ordered by chunk_index ascending, optionally restricted
// to a page range. The pipeline's fetch helper owns deduplication and
// page-size backoff; this adapter only executes the query it is
// asked for.
func (s *PostgresMetadataStore) ListChunkEmbeddings(ctx context.Context, documentID string, pageRange *pipeline.PageRange, pageSize, offset int) (pipeline.ChunkPage, error) {
	query := `
		SELECT id, chunk_index, page_number, embedding, chunk_text, character_count
		FROM document_chunks
		WHERE document_id = $1`
	args := []interface{}{documentID}

	if pageRange != nil {
		query += fmt.Sprintf(` AND page_number >= $%d AND page_number <= $%d`, len(args)+1, len(args)+2)
		args = append(args, pageRange.Start, pageRange.End)
	}

	query += fmt.Sprintf(` ORDER BY chunk_index ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	// Request one extra row so HasMore can be determined without a
	// second round trip.
	args = append(args, pageSize+1, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return pipeline.ChunkPage{}, fmt.Errorf("repository.ListChunkEmbeddings: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunkPage(rows, pageSize)
	if err != nil {
		return pipeline.ChunkPage{}, fmt.Errorf("repository.ListChunkEmbeddings: %w", err)
	}
	return chunks, nil
}

func scanChunkPage(rows pgx.Rows, pageSize int) (pipeline.ChunkPage, error) {
	var out []pipeline.ChunkDescriptor
	for rows.Next() {
		var (
			c         pipeline.ChunkDescriptor
			embedding pgvector.Vector
			text      string
		)
		if err := rows.Scan(&c.ID, &c.Index, &c.PageNumber, &embedding, &text, &c.CharacterCount); err != nil {
			return pipeline.ChunkPage{}, fmt.Errorf("scan: %w", err)
		}
		c.Embedding = embedding.Slice()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return pipeline.ChunkPage{}, err
	}

	hasMore := len(out) > pageSize
	if hasMore {
		out = out[:pageSize]
	}
	return pipeline.ChunkPage{Chunks: out, HasMore: hasMore}, nil
}
