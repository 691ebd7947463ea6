package repository

import (
	"context"
	"os"
	"testing"
	"time"
)

func setupStore(t *testing.T) (*PostgresMetadataStore, func()) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dbURL, 5)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/001_initial_schema.up.sql")
	if err != nil {
		pool.Close()
		t.Fatalf("read migration: %v", err)
	}

	var ensureErr error
	for attempt := 0; attempt < 5; attempt++ {
		if _, ensureErr = pool.Exec(ctx, string(migrationSQL)); ensureErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if ensureErr != nil {
		pool.Close()
		t.Fatalf("setup schema after retries: %v", ensureErr)
	}

	store := NewPostgresMetadataStore(pool)
	return store, func() { pool.Close() }
}

func insertTestDocument(t *testing.T, store *PostgresMetadataStore, id string, centroid []float32) {
	t.Helper()
	ctx := context.Background()
	_, err := store.pool.Exec(ctx, `
		INSERT INTO documents (id, owner_id, title, filename, embedding_model, total_characters, page_count)
		VALUES ($1, 'test-owner', 'Test Doc', 'test.pdf', 'test-embed-v1', 4000, 10)
		ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		t.Fatalf("insert document: %v", err)
	}
	if centroid != nil {
		if err := store.UpdateCentroid(ctx, id, centroid, 10, 4000); err != nil {
			t.Fatalf("UpdateCentroid: %v", err)
		}
	}
}

func TestPostgresMetadataStore_GetDocument_NoCentroid(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	insertTestDocument(t, store, "doc-no-centroid", nil)

	summary, err := store.GetDocument(context.Background(), "doc-no-centroid")
	if err != nil {
		t.Fatalf("GetDocument() error: %v", err)
	}
	if summary.CentroidEmbedding != nil {
		t.Error("expected nil centroid for a document that hasn't finished ingesting")
	}
	if summary.TotalCharacters != 4000 {
		t.Errorf("TotalCharacters = %d, want 4000", summary.TotalCharacters)
	}
}

func TestPostgresMetadataStore_GetDocument_WithCentroid(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	vec := make([]float32, 768)
	vec[0] = 1.0
	insertTestDocument(t, store, "doc-with-centroid", vec)

	summary, err := store.GetDocument(context.Background(), "doc-with-centroid")
	if err != nil {
		t.Fatalf("GetDocument() error: %v", err)
	}
	if len(summary.CentroidEmbedding) != 768 {
		t.Fatalf("CentroidEmbedding length = %d, want 768", len(summary.CentroidEmbedding))
	}
	if summary.EffectiveChunkCount != 10 {
		t.Errorf("EffectiveChunkCount = %d, want 10", summary.EffectiveChunkCount)
	}
}

func TestPostgresMetadataStore_GetDocument_NotFound(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.GetDocument(context.Background(), "does-not-exist")
	if err == nil {
		t.Fatal("expected error for missing document")
	}
}
