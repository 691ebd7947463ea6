package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// stage0Result is Stage-0's candidate output: document IDs ranked by
// their best (maximum) chunk score, in descending order.
type stage0Result struct {
	candidateIDs []string
	scores       []float64
}

// runStage0 retrieves centroid-ANN candidates for sourceID, excluding
// the source document itself regardless of caller-supplied filters.
func runStage0(ctx context.Context, index VectorIndex, sourceID string, vector []float32, topK int, callerFilters []Filter) (stage0Result, error) {
	filters, empty := buildExclusionFilters(sourceID, callerFilters)
	if empty {
		return stage0Result{}, nil
	}

	hits, err := index.Query(ctx, vector, topK*2, filters)
	if err != nil {
		return stage0Result{}, fmt.Errorf("pipeline.runStage0: query: %w", err)
	}

	result := reduceToDocuments(hits, topK)

	if len(result.candidateIDs) == 0 && hasUserIDFilter(callerFilters) {
		diagnosticFilters, _ := buildExclusionFilters(sourceID, dropUserIDFilter(callerFilters))
		diagHits, diagErr := index.Query(ctx, vector, topK*2, diagnosticFilters)
		if diagErr == nil {
			slog.Info("stage0 retried without user_id for diagnostics only",
				"source_doc_id", sourceID,
				"diagnostic_candidate_count", len(diagHits),
			)
		}
	}

	return result, nil
}

// buildExclusionFilters merges the caller's filters with a
// document_id != sourceID exclusion. If the caller's own document_id
// filter already resolves to nothing but sourceID, the intersection is
// empty and the second return value is true, meaning "no candidates,
// skip the query entirely."
func buildExclusionFilters(sourceID string, callerFilters []Filter) (filters []Filter, empty bool) {
	filters = append(filters, callerFilters...)

	for _, f := range callerFilters {
		if f.Key != "document_id" {
			continue
		}
		switch f.Op {
		case FilterEquals:
			if f.Value == sourceID {
				return nil, true
			}
		case FilterIn:
			remaining := make([]string, 0, len(f.Values))
			for _, v := range f.Values {
				if v != sourceID {
					remaining = append(remaining, v)
				}
			}
			if len(remaining) == 0 {
				return nil, true
			}
		}
	}

	filters = append(filters, Filter{Key: "document_id", Op: FilterNotEquals, Value: sourceID})
	return filters, false
}

func hasUserIDFilter(filters []Filter) bool {
	for _, f := range filters {
		if f.Key == "user_id" {
			return true
		}
	}
	return false
}

func dropUserIDFilter(filters []Filter) []Filter {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f.Key != "user_id" {
			out = append(out, f)
		}
	}
	return out
}

// reduceToDocuments collapses per-chunk ANN hits into per-document
// candidates, keeping the maximum score seen for each document, sorted
// descending (ties broken on document ID for a deterministic order)
// and truncated to topK.
func reduceToDocuments(hits []VectorHit, topK int) stage0Result {
	best := make(map[string]float64)
	for _, h := range hits {
		if cur, ok := best[h.DocumentID]; !ok || h.Score > cur {
			best[h.DocumentID] = h.Score
		}
	}

	type doc struct {
		id    string
		score float64
	}
	docs := make([]doc, 0, len(best))
	for id, score := range best {
		docs = append(docs, doc{id, score})
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].score != docs[j].score {
			return docs[i].score > docs[j].score
		}
		return docs[i].id < docs[j].id
	})

	if len(docs) > topK {
		docs = docs[:topK]
	}

	result := stage0Result{
		candidateIDs: make([]string, len(docs)),
		scores:       make([]float64, len(docs)),
	}
	for i, d := range docs {
		result.candidateIDs[i] = d.id
		result.scores[i] = d.score
	}
	return result
}
