package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// GraphReuseSink merges a REUSED_BY edge per result into a reuse graph,
// letting analysts traverse document lineage instead of reading one
// ranked list at a time.
type GraphReuseSink struct {
	driver neo4j.DriverWithContext
}

// NewGraphReuseSink creates a GraphReuseSink against an already
// connected Neo4j driver.
func NewGraphReuseSink(driver neo4j.DriverWithContext) *GraphReuseSink {
	return &GraphReuseSink{driver: driver}
}

var _ ResultSink = (*GraphReuseSink)(nil)

func (s *GraphReuseSink) Write(ctx context.Context, sourceDocID string, result pipeline.SimilaritySearchResult) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, r := range result.Results {
		sections := make([]string, 0, len(r.Sections))
		for _, sec := range r.Sections {
			sections = append(sections, fmt.Sprintf("%s->%s", sec.SourceRange, sec.TargetRange))
		}

		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, `
				MERGE (source:Document {id: $sourceID})
				MERGE (target:Document {id: $targetID})
				MERGE (source)-[edge:REUSED_BY]->(target)
				SET edge.sourceScore = $sourceScore,
				    edge.targetScore = $targetScore,
				    edge.sections = $sections`,
				map[string]any{
					"sourceID":    sourceDocID,
					"targetID":    r.Document.ID,
					"sourceScore": r.Scores.SourceScore,
					"targetScore": r.Scores.TargetScore,
					"sections":    strings.Join(sections, ","),
				})
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("sink.GraphReuseSink.Write: merge %s->%s: %w", sourceDocID, r.Document.ID, err)
		}
	}
	return nil
}
