package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/connexus-ai/docsim-core/internal/matcher"
	"github.com/connexus-ai/docsim-core/internal/scorer"
	"github.com/connexus-ai/docsim-core/internal/section"
)

// stage2Deps bundles the adapters Stage-2 needs per candidate.
type stage2Deps struct {
	metaReader  DocumentMetadataReader
	chunkReader ChunkEmbeddingsReader
	metrics     StageMetrics
}

// runStage2 fans candidateIDs out across a bounded set of workers,
// each processing its slice of candidates sequentially through the
// matcher → scorer → section chain with a per-candidate deadline, and
// returns the top results sorted per §4.8 step 4.
func runStage2(ctx context.Context, deps stage2Deps, sourceChunks []ChunkDescriptor, sourceTotalChars int, candidateIDs []string, workers int, opts Options) []SimilarityResult {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(candidateIDs) {
		workers = len(candidateIDs)
	}
	if workers == 0 {
		return nil
	}

	batches := partition(candidateIDs, workers)
	resultsCh := make(chan SimilarityResult, len(candidateIDs))

	var wg sync.WaitGroup
	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, candidateID := range batch {
				if ctx.Err() != nil {
					return
				}
				result := runCandidateWithDeadline(ctx, deps, sourceChunks, sourceTotalChars, candidateID, opts)
				if result != nil {
					resultsCh <- *result
				}
			}
		}()
	}

	wg.Wait()
	close(resultsCh)

	var results []SimilarityResult
	for r := range resultsCh {
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Scores.SourceScore != b.Scores.SourceScore {
			return a.Scores.SourceScore > b.Scores.SourceScore
		}
		if a.Scores.TargetScore != b.Scores.TargetScore {
			return a.Scores.TargetScore > b.Scores.TargetScore
		}
		if a.Scores.MatchedTargetChars != b.Scores.MatchedTargetChars {
			return a.Scores.MatchedTargetChars > b.Scores.MatchedTargetChars
		}
		return a.MatchedChunks > b.MatchedChunks
	})

	if len(results) > maxFinalResults {
		results = results[:maxFinalResults]
	}
	return results
}

func partition(ids []string, workers int) [][]string {
	batches := make([][]string, workers)
	for i, id := range ids {
		w := i % workers
		batches[w] = append(batches[w], id)
	}
	return batches
}

// runCandidateWithDeadline races processCandidate against a per-candidate
// timer: the firing timer wins and the candidate contributes nothing,
// while the goroutine computing it is abandoned (its result is simply
// dropped when it eventually completes).
func runCandidateWithDeadline(ctx context.Context, deps stage2Deps, sourceChunks []ChunkDescriptor, sourceTotalChars int, candidateID string, opts Options) *SimilarityResult {
	candidateCtx, cancel := context.WithTimeout(ctx, opts.Stage2Timeout)
	defer cancel()

	done := make(chan *SimilarityResult, 1)
	go func() {
		done <- processCandidate(candidateCtx, deps, sourceChunks, sourceTotalChars, candidateID, opts)
	}()

	select {
	case result := <-done:
		return result
	case <-candidateCtx.Done():
		slog.Warn("stage2 candidate deadline exceeded",
			"candidate_doc_id", candidateID, "timeout", opts.Stage2Timeout)
		if deps.metrics != nil {
			deps.metrics.CandidateTimeout()
		}
		return nil
	}
}

// processCandidate fetches the candidate's metadata and chunks, then
// runs the matcher/scorer/section chain. Any data-quality problem
// yields a nil result rather than an error — per §7, candidate-level
// failures are recoverable and logged, never fatal.
func processCandidate(ctx context.Context, deps stage2Deps, sourceChunks []ChunkDescriptor, sourceTotalChars int, candidateID string, opts Options) *SimilarityResult {
	summary, err := deps.metaReader.GetDocument(ctx, candidateID)
	if err != nil {
		slog.Warn("stage2 failed to load candidate metadata", "candidate_doc_id", candidateID, "error", err)
		return nil
	}
	if summary.TotalCharacters <= 0 {
		slog.Warn("stage2 candidate has no totalCharacters", "candidate_doc_id", candidateID)
		return nil
	}

	candidateChunks, err := fetchAllChunks(ctx, deps.chunkReader, candidateID, nil)
	if err != nil {
		slog.Warn("stage2 failed to fetch candidate chunks", "candidate_doc_id", candidateID, "error", err)
		return nil
	}
	if len(candidateChunks) == 0 {
		slog.Warn("stage2 candidate has no chunks", "candidate_doc_id", candidateID)
		return nil
	}

	matchOpts := matcher.Options{
		PrimaryThreshold: opts.Stage2Threshold,
		Fallback: matcher.FallbackOptions{
			Enabled:          *opts.Stage2FallbackEnabled,
			Threshold:        opts.Stage2FallbackThreshold,
			TopK:             5,
			ProximityScore:   0.82,
			MaxPageDistance:  3,
			MaxIndexDistance: 5,
			MaxLengthRatio:   0.4,
		},
	}

	matches, reason, err := matcher.Match(toMatcherDescriptors(sourceChunks), toMatcherDescriptors(candidateChunks), sourceTotalChars, summary.TotalCharacters, matchOpts)
	if err != nil {
		slog.Warn("stage2 matcher error", "candidate_doc_id", candidateID, "error", err)
		return nil
	}
	if reason != "" {
		if reason == "insufficient evidence" && deps.metrics != nil {
			deps.metrics.InsufficientEvidence()
		}
		return nil
	}

	pairs := make([]scorer.MatchedPair, len(matches))
	sectionMatches := make([]section.Match, len(matches))
	for i, m := range matches {
		pairs[i] = scorer.MatchedPair{
			Source: scorer.MatchedChunk{ID: m.ChunkA.ID, CharacterCount: m.ChunkA.CharacterCount},
			Target: scorer.MatchedChunk{ID: m.ChunkB.ID, CharacterCount: m.ChunkB.CharacterCount},
			Score:  m.Score,
		}
		sectionMatches[i] = section.Match{
			SourcePage: m.ChunkA.PageNumber,
			TargetPage: m.ChunkB.PageNumber,
			Score:      m.Score,
		}
	}

	scores, err := scorer.Score(pairs, sourceTotalChars, summary.TotalCharacters)
	if err != nil {
		slog.Warn("stage2 scorer error", "candidate_doc_id", candidateID, "error", err)
		return nil
	}

	sections, err := section.Detect(sectionMatches, section.DefaultOptions())
	if err != nil {
		slog.Warn("stage2 section detector error", "candidate_doc_id", candidateID, "error", err)
		return nil
	}

	return &SimilarityResult{
		Document: summary,
		Scores: SimilarityScores{
			SourceScore:        scores.SourceScore,
			TargetScore:        scores.TargetScore,
			MatchedSourceChars: scores.MatchedCharsSource,
			MatchedTargetChars: scores.MatchedCharsTarget,
			Explanation:        explain(scores.SourceScore, scores.TargetScore),
		},
		MatchedChunks: len(matches),
		Sections:      toSectionMatches(sections),
	}
}

func explain(sourceScore, targetScore float64) string {
	if sourceScore >= 0.95 && targetScore >= 0.95 {
		return "near-identical documents"
	}
	if sourceScore >= 0.95 {
		return "source is almost entirely reused in the candidate"
	}
	if targetScore >= 0.95 {
		return "candidate is almost entirely reused from the source"
	}
	return "partial overlap between source and candidate"
}

func toMatcherDescriptors(chunks []ChunkDescriptor) []matcher.ChunkDescriptor {
	out := make([]matcher.ChunkDescriptor, len(chunks))
	for i, c := range chunks {
		out[i] = matcher.ChunkDescriptor{
			ID:             c.ID,
			Index:          c.Index,
			PageNumber:     c.PageNumber,
			CharacterCount: c.CharacterCount,
			Embedding:      c.Embedding,
		}
	}
	return out
}

func toSectionMatches(sections []section.Section) []SectionMatch {
	out := make([]SectionMatch, len(sections))
	for i, s := range sections {
		out[i] = SectionMatch{
			SourceRange:  section.FormatRange(s.SourcePageStart, s.SourcePageEnd),
			TargetRange:  section.FormatRange(s.TargetPageStart, s.TargetPageEnd),
			AverageScore: s.AverageScore,
			ChunkCount:   s.MatchCount,
			Reusable:     s.Classification == section.Reusable,
		}
	}
	return out
}
