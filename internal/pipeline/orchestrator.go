package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/connexus-ai/docsim-core/internal/vectormath"
)

// Orchestrator threads options through the three stages and assembles
// the final, timed result. It never mutates external state: every
// dependency it holds is read-only from the orchestrator's point of
// view.
type Orchestrator struct {
	index       VectorIndex
	metaReader  DocumentMetadataReader
	chunkReader ChunkEmbeddingsReader
	metrics     StageMetrics
}

// NewOrchestrator wires the three external capabilities together.
func NewOrchestrator(index VectorIndex, metaReader DocumentMetadataReader, chunkReader ChunkEmbeddingsReader) *Orchestrator {
	return &Orchestrator{index: index, metaReader: metaReader, chunkReader: chunkReader}
}

// WithMetrics attaches optional Stage-2 instrumentation and returns the
// orchestrator for chaining. A zero-value Orchestrator (no metrics
// attached) is valid: every call site nil-checks before use.
func (o *Orchestrator) WithMetrics(m StageMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// ExecuteSimilaritySearch is the single operation the core exposes: it
// finds documents similar to sourceDocID and returns a ranked,
// page-range-grouped result set with per-stage timing and candidate
// counts.
func (o *Orchestrator) ExecuteSimilaritySearch(ctx context.Context, sourceDocID string, opts Options) (SimilaritySearchResult, error) {
	resolved := ResolveOptions(opts)
	if resolved.Stage2Threshold < 0 || resolved.Stage2Threshold > 1 {
		return SimilaritySearchResult{}, newFatalError("validate", Timing{}, fmt.Errorf("stage2 threshold %v out of [0,1]", resolved.Stage2Threshold))
	}

	start := time.Now()
	slog.Info("similarity search starting", "source_doc_id", sourceDocID)

	sourceChunks, err := fetchAllChunks(ctx, o.chunkReader, sourceDocID, resolved.SourcePageRange)
	if err != nil {
		return SimilaritySearchResult{}, newFatalError("fetch_source", Timing{}, err)
	}
	if len(sourceChunks) == 0 {
		return SimilaritySearchResult{}, newFatalError("fetch_source", Timing{}, fmt.Errorf("source document %s has no chunks in scope", sourceDocID))
	}

	sourceTotalChars := totalCharacters(sourceChunks)
	if sourceTotalChars <= 0 {
		return SimilaritySearchResult{}, newFatalError("fetch_source", Timing{}, fmt.Errorf("source document %s has no characters in scope", sourceDocID))
	}

	sourceVector, err := resolveSourceVector(ctx, o.metaReader, sourceDocID, sourceChunks, resolved.SourcePageRange)
	if err != nil {
		return SimilaritySearchResult{}, newFatalError("stage0", Timing{}, err)
	}

	stage0Start := time.Now()
	stage0Res, err := runStage0(ctx, o.index, sourceDocID, sourceVector, resolved.Stage0TopK, resolved.Stage0Filters)
	stage0Ms := time.Since(stage0Start).Milliseconds()
	if err != nil {
		return SimilaritySearchResult{}, newFatalError("stage0", Timing{Stage0Ms: stage0Ms}, err)
	}
	slog.Info("stage0 complete", "source_doc_id", sourceDocID, "candidates", len(stage0Res.candidateIDs), "duration_ms", stage0Ms)

	if len(stage0Res.candidateIDs) == 0 {
		return SimilaritySearchResult{
			Timing: Timing{Stage0Ms: stage0Ms, TotalMs: time.Since(start).Milliseconds()},
			Stages: Stages{Stage0Candidates: 0},
		}, nil
	}

	stage1Start := time.Now()
	stage1Res, err := resolveStage1(ctx, o.index, sourceChunks, stage0Res.candidateIDs, resolved)
	stage1Ms := time.Since(stage1Start).Milliseconds()
	if err != nil {
		return SimilaritySearchResult{}, newFatalError("stage1", Timing{Stage0Ms: stage0Ms, Stage1Ms: stage1Ms}, err)
	}
	slog.Info("stage1 complete", "source_doc_id", sourceDocID, "candidates", len(stage1Res.candidateIDs), "duration_ms", stage1Ms)

	stage2Start := time.Now()
	workers := resolved.Stage2ParallelWorkers
	if workers <= 0 {
		workers = parallelWorkers(len(stage1Res.candidateIDs))
	}
	results := runStage2(ctx, stage2Deps{metaReader: o.metaReader, chunkReader: o.chunkReader, metrics: o.metrics}, sourceChunks, sourceTotalChars, stage1Res.candidateIDs, workers, resolved)
	stage2Ms := time.Since(stage2Start).Milliseconds()
	slog.Info("stage2 complete", "source_doc_id", sourceDocID, "results", len(results), "duration_ms", stage2Ms)

	totalMs := time.Since(start).Milliseconds()

	return SimilaritySearchResult{
		Results: results,
		Timing: Timing{
			Stage0Ms: stage0Ms,
			Stage1Ms: stage1Ms,
			Stage2Ms: stage2Ms,
			TotalMs:  totalMs,
		},
		Stages: Stages{
			Stage0Candidates: len(stage0Res.candidateIDs),
			Stage1Candidates: len(stage1Res.candidateIDs),
			FinalResults:     len(results),
		},
	}, nil
}

// resolveSourceVector computes the vector Stage-0 should query with:
// a scope-restricted centroid when a page range narrows the source,
// or the document's stored centroid otherwise.
func resolveSourceVector(ctx context.Context, metaReader DocumentMetadataReader, sourceDocID string, sourceChunks []ChunkDescriptor, pageRange *PageRange) ([]float32, error) {
	if pageRange != nil {
		embeddings := make([][]float32, len(sourceChunks))
		for i, c := range sourceChunks {
			embeddings[i] = c.Embedding
		}
		centroid, err := vectormath.Centroid(embeddings)
		if err != nil {
			return nil, fmt.Errorf("compute scope-restricted centroid: %w", err)
		}
		return centroid, nil
	}

	summary, err := metaReader.GetDocument(ctx, sourceDocID)
	if err != nil {
		return nil, fmt.Errorf("get source document: %w", err)
	}
	if summary.CentroidEmbedding == nil {
		return nil, fmt.Errorf("source document %s has no centroid embedding", sourceDocID)
	}
	return summary.CentroidEmbedding, nil
}

// resolveStage1 runs Stage-1 when enabled, auto-sizing its per-chunk
// neighbor budget from the Stage-0 candidate count, or passes Stage-0's
// candidates straight through otherwise.
func resolveStage1(ctx context.Context, index VectorIndex, sourceChunks []ChunkDescriptor, candidateIDs []string, resolved Options) (stage1Result, error) {
	if !*resolved.Stage1Enabled {
		return passThrough(candidateIDs), nil
	}

	neighbors := resolved.Stage1NeighborsPerChunk
	if neighbors <= 0 {
		neighbors = neighborsPerChunk(len(candidateIDs))
	}
	return runStage1(ctx, index, sourceChunks, candidateIDs, resolved.Stage1TopK, neighbors, resolved.Stage1BatchSize)
}
