package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/connexus-ai/docsim-core/internal/pipeline"
)

type fakeSink struct {
	err   error
	calls int
}

func (f *fakeSink) Write(ctx context.Context, sourceDocID string, result pipeline.SimilaritySearchResult) error {
	f.calls++
	return f.err
}

func TestWriteAll_RunsEverySinkDespiteFailures(t *testing.T) {
	ok1 := &fakeSink{}
	broken := &fakeSink{err: errors.New("boom")}
	ok2 := &fakeSink{}

	errs := WriteAll(context.Background(), []ResultSink{ok1, broken, ok2}, "doc-1", pipeline.SimilaritySearchResult{})

	if ok1.calls != 1 || broken.calls != 1 || ok2.calls != 1 {
		t.Fatalf("expected every sink to be called once: ok1=%d broken=%d ok2=%d", ok1.calls, broken.calls, ok2.calls)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
}

func TestWriteAll_NoErrorsWhenAllSucceed(t *testing.T) {
	errs := WriteAll(context.Background(), []ResultSink{&fakeSink{}, &fakeSink{}}, "doc-1", pipeline.SimilaritySearchResult{})
	if len(errs) != 0 {
		t.Fatalf("got %d errors, want 0", len(errs))
	}
}
