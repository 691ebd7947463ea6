package pipeline

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// stage1Result is Stage-1's trimmed candidate output: document IDs
// ranked by chunk-match count, alongside the counts themselves.
type stage1Result struct {
	candidateIDs []string
	matchCounts  map[string]int
}

// runStage1 restricts Stage-0's candidates to the top stage1TopK by
// chunk-level match density, or passes Stage-0's candidates through
// unchanged when already at or under capacity.
func runStage1(ctx context.Context, index VectorIndex, sourceChunks []ChunkDescriptor, candidateIDs []string, stage1TopK, neighbors, batchSize int) (stage1Result, error) {
	if len(candidateIDs) <= stage1TopK {
		return passThrough(candidateIDs), nil
	}

	counts := make(map[string]int, len(candidateIDs))
	candidateFilter := []Filter{{Key: "document_id", Op: FilterIn, Values: candidateIDs}}

	for start := 0; start < len(sourceChunks); start += batchSize {
		end := start + batchSize
		if end > len(sourceChunks) {
			end = len(sourceChunks)
		}
		batch := sourceChunks[start:end]

		// Queries within one batch are independent ANN lookups against
		// the same candidate filter, so they fan out concurrently; the
		// batch boundary itself stays sequential to bound in-flight
		// queries to batchSize.
		batchHits := make([][]VectorHit, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, chunk := range batch {
			i, chunk := i, chunk
			g.Go(func() error {
				hits, err := index.Query(gctx, chunk.Embedding, neighbors, candidateFilter)
				if err != nil {
					return err
				}
				batchHits[i] = hits
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stage1Result{}, fmt.Errorf("pipeline.runStage1: query batch [%d:%d]: %w", start, end, err)
		}

		for _, hits := range batchHits {
			seen := make(map[string]bool, len(hits))
			for _, h := range hits {
				if seen[h.DocumentID] {
					continue
				}
				seen[h.DocumentID] = true
				counts[h.DocumentID]++
			}
		}
	}

	type doc struct {
		id    string
		count int
	}
	docs := make([]doc, 0, len(counts))
	for id, c := range counts {
		docs = append(docs, doc{id, c})
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].count > docs[j].count })
	if len(docs) > stage1TopK {
		docs = docs[:stage1TopK]
	}

	result := stage1Result{
		candidateIDs: make([]string, len(docs)),
		matchCounts:  make(map[string]int, len(docs)),
	}
	for i, d := range docs {
		result.candidateIDs[i] = d.id
		result.matchCounts[d.id] = d.count
	}
	return result, nil
}

func passThrough(candidateIDs []string) stage1Result {
	counts := make(map[string]int, len(candidateIDs))
	for _, id := range candidateIDs {
		counts[id] = 0
	}
	return stage1Result{candidateIDs: candidateIDs, matchCounts: counts}
}
