package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

const (
	fetchPageSizeStart = 100
	fetchPageSizeFloor = 25
)

// fetchAllChunks pages through a document's chunk embeddings,
// deduplicating by chunk index (the reader contract allows duplicate
// chunkIndex values across retried pages) and halving the page size on
// a read timeout down to fetchPageSizeFloor before giving up on the
// document entirely. The result is always sorted by chunkIndex
// ascending, matching ChunkEmbeddingsReader's ordering contract.
func fetchAllChunks(ctx context.Context, reader ChunkEmbeddingsReader, documentID string, pageRange *PageRange) ([]ChunkDescriptor, error) {
	seen := make(map[int]ChunkDescriptor)
	offset := 0
	pageSize := fetchPageSizeStart

	for {
		page, err := fetchPageWithRetry(ctx, reader, documentID, pageRange, &pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("pipeline.fetchAllChunks: %w", err)
		}
		for _, c := range page.Chunks {
			seen[c.Index] = c
		}
		offset += len(page.Chunks)
		if !page.HasMore || len(page.Chunks) == 0 {
			break
		}
	}

	chunks := make([]ChunkDescriptor, 0, len(seen))
	for _, c := range seen {
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// fetchPageWithRetry fetches one page, halving pageSize (via the
// shared pointer, so later pages start smaller too) each time a read
// fails while ctx itself is still live (a store-side timeout or any
// other read error), down to fetchPageSizeFloor. Once ctx is done or
// the floor is reached, the read error is returned.
func fetchPageWithRetry(ctx context.Context, reader ChunkEmbeddingsReader, documentID string, pageRange *PageRange, pageSize *int, offset int) (ChunkPage, error) {
	for {
		page, err := reader.ListChunkEmbeddings(ctx, documentID, pageRange, *pageSize, offset)
		if err == nil {
			return page, nil
		}
		if ctx.Err() == nil && *pageSize > fetchPageSizeFloor {
			*pageSize /= 2
			if *pageSize < fetchPageSizeFloor {
				*pageSize = fetchPageSizeFloor
			}
			slog.Warn("chunk page read timed out, retrying with smaller page",
				"document_id", documentID, "page_size", *pageSize, "offset", offset)
			continue
		}
		return ChunkPage{}, err
	}
}

func totalCharacters(chunks []ChunkDescriptor) int {
	var total int
	for _, c := range chunks {
		total += c.CharacterCount
	}
	return total
}
