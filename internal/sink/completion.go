package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// CompletionEventSink publishes a similarity_search.completed event
// with stage timings and result counts, for downstream analytics to
// consume asynchronously. It never includes the per-candidate scores
// themselves — those stay in PostgresAuditSink/EvidenceExportSink.
type CompletionEventSink struct {
	topic *pubsub.Topic
}

// NewCompletionEventSink creates a CompletionEventSink publishing to topic.
func NewCompletionEventSink(topic *pubsub.Topic) *CompletionEventSink {
	return &CompletionEventSink{topic: topic}
}

var _ ResultSink = (*CompletionEventSink)(nil)

type completionEvent struct {
	Event            string          `json:"event"`
	SourceDocumentID string          `json:"sourceDocumentId"`
	Timing           pipeline.Timing `json:"timing"`
	Stages           pipeline.Stages `json:"stages"`
}

func (s *CompletionEventSink) Write(ctx context.Context, sourceDocID string, result pipeline.SimilaritySearchResult) error {
	payload, err := json.Marshal(completionEvent{
		Event:            "similarity_search.completed",
		SourceDocumentID: sourceDocID,
		Timing:           result.Timing,
		Stages:           result.Stages,
	})
	if err != nil {
		return fmt.Errorf("sink.CompletionEventSink.Write: marshal: %w", err)
	}

	res := s.topic.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("sink.CompletionEventSink.Write: publish: %w", err)
	}
	return nil
}
