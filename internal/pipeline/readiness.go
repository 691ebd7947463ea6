package pipeline

import (
	"context"
	"fmt"
)

// DocumentReadiness answers "is this document ready to be searched
// against?" by checking that it has a centroid, a positive effective
// chunk count, and at least one reachable chunk embedding. An
// embedding-model tag mismatch is a warning, not a failure — the
// document is still usable, just flagged for the caller's attention.
func DocumentReadiness(ctx context.Context, metaReader DocumentMetadataReader, chunkReader ChunkEmbeddingsReader, documentID string, expectedEmbeddingModel string) (ready bool, warnings []string, err error) {
	summary, err := metaReader.GetDocument(ctx, documentID)
	if err != nil {
		return false, nil, fmt.Errorf("pipeline.DocumentReadiness: get document: %w", err)
	}

	if summary.CentroidEmbedding == nil {
		return false, nil, nil
	}
	if summary.EffectiveChunkCount <= 0 {
		return false, nil, nil
	}

	page, err := chunkReader.ListChunkEmbeddings(ctx, documentID, nil, 1, 0)
	if err != nil {
		return false, nil, fmt.Errorf("pipeline.DocumentReadiness: list chunks: %w", err)
	}
	if len(page.Chunks) == 0 {
		return false, nil, nil
	}

	if expectedEmbeddingModel != "" && summary.EmbeddingModel != "" && summary.EmbeddingModel != expectedEmbeddingModel {
		warnings = append(warnings, fmt.Sprintf("document embedding model %q does not match configured model %q", summary.EmbeddingModel, expectedEmbeddingModel))
	}

	return true, warnings, nil
}
