package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

// EvidenceExportSink writes the full search result as a JSON bundle to
// GCS, under gs://<bucket>/evidence/<sourceDocID>/<ts>.json, for
// compliance retention.
type EvidenceExportSink struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewEvidenceExportSink creates an EvidenceExportSink against bucket.
func NewEvidenceExportSink(client *storage.Client, bucket string) *EvidenceExportSink {
	return &EvidenceExportSink{client: client, bucket: bucket, now: time.Now}
}

var _ ResultSink = (*EvidenceExportSink)(nil)

type evidenceBundle struct {
	SourceDocumentID string                      `json:"sourceDocumentId"`
	ExportedAt       time.Time                   `json:"exportedAt"`
	Results          []pipeline.SimilarityResult `json:"results"`
	Timing           pipeline.Timing             `json:"timing"`
	Stages           pipeline.Stages             `json:"stages"`
}

func (s *EvidenceExportSink) Write(ctx context.Context, sourceDocID string, result pipeline.SimilaritySearchResult) error {
	bundle := evidenceBundle{
		SourceDocumentID: sourceDocID,
		ExportedAt:       s.now().UTC(),
		Results:          result.Results,
		Timing:           result.Timing,
		Stages:           result.Stages,
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("sink.EvidenceExportSink.Write: marshal: %w", err)
	}

	object := fmt.Sprintf("evidence/%s/%d.json", sourceDocID, bundle.ExportedAt.UnixNano())
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("sink.EvidenceExportSink.Write: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("sink.EvidenceExportSink.Write: close: %w", err)
	}
	return nil
}
