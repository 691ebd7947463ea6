// Package sink implements fan-out consumers of a completed similarity
// search result. Sinks never feed back into scoring: the orchestrator
// itself never calls them, a caller does, after ExecuteSimilaritySearch
// returns, and a sink failure is logged, never propagated as an error
// from the search itself.
package sink

import (
	"context"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// ResultSink fans a completed search result out to an external system.
type ResultSink interface {
	Write(ctx context.Context, sourceDocID string, result pipeline.SimilaritySearchResult) error
}

// WriteAll runs every sink against the same result, collecting (not
// stopping on) individual failures so one broken sink never blocks the
// others. The caller is expected to log the returned errors; the
// pipeline result has already been delivered by this point.
func WriteAll(ctx context.Context, sinks []ResultSink, sourceDocID string, result pipeline.SimilaritySearchResult) []error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, sourceDocID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
