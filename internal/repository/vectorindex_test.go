package repository

import (
	"context"
	"os"
	"testing"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

func setupVectorIndex(t *testing.T) (*PostgresVectorIndex, *PostgresMetadataStore, func()) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	store, cleanup := setupStore(t)
	return NewPostgresVectorIndex(store.pool), store, cleanup
}

func TestPostgresVectorIndex_Query_DocumentIDFilter(t *testing.T) {
	index, store, cleanup := setupVectorIndex(t)
	defer cleanup()

	insertTestDocument(t, store, "doc-a", nil)
	insertTestDocument(t, store, "doc-b", nil)
	insertTestChunks(t, store, "doc-a", 2)
	insertTestChunks(t, store, "doc-b", 2)

	query := make([]float32, 768)
	query[0] = 1.0

	hits, err := index.Query(context.Background(), query, 10, []pipeline.Filter{
		{Key: "document_id", Op: pipeline.FilterNotEquals, Value: "doc-a"},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	for _, h := range hits {
		if h.DocumentID == "doc-a" {
			t.Errorf("document_id != doc-a filter still returned doc-a hit %s", h.ID)
		}
	}
}

func TestPostgresVectorIndex_Query_SetMembership(t *testing.T) {
	index, store, cleanup := setupVectorIndex(t)
	defer cleanup()

	insertTestDocument(t, store, "doc-x", nil)
	insertTestDocument(t, store, "doc-y", nil)
	insertTestDocument(t, store, "doc-z", nil)
	insertTestChunks(t, store, "doc-x", 1)
	insertTestChunks(t, store, "doc-y", 1)
	insertTestChunks(t, store, "doc-z", 1)

	query := make([]float32, 768)
	query[0] = 1.0

	hits, err := index.Query(context.Background(), query, 10, []pipeline.Filter{
		{Key: "document_id", Op: pipeline.FilterIn, Values: []string{"doc-x", "doc-y"}},
	})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	for _, h := range hits {
		if h.DocumentID != "doc-x" && h.DocumentID != "doc-y" {
			t.Errorf("got hit for document_id %s, not in the IN-set", h.DocumentID)
		}
	}
}

func TestPostgresVectorIndex_Query_RespectsTopK(t *testing.T) {
	index, store, cleanup := setupVectorIndex(t)
	defer cleanup()

	insertTestDocument(t, store, "doc-topk", nil)
	insertTestChunks(t, store, "doc-topk", 10)

	query := make([]float32, 768)
	hits, err := index.Query(context.Background(), query, 3, nil)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(hits) > 3 {
		t.Errorf("got %d hits, want at most 3", len(hits))
	}
}
