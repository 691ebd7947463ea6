package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/connexus-ai/docsim-core/internal/cache"
	"github.com/connexus-ai/docsim-core/internal/config"
	docsimmetrics "github.com/connexus-ai/docsim-core/internal/metrics"
	"github.com/connexus-ai/docsim-core/internal/pipeline"
	"github.com/connexus-ai/docsim-core/internal/repository"
	"github.com/connexus-ai/docsim-core/internal/sink"
)

const Version = "0.1.0"

// server bundles everything an HTTP handler needs to run a search.
type server struct {
	orchestrator *pipeline.Orchestrator
	sinks        []sink.ResultSink
	metrics      *docsimmetrics.Metrics
	cfg          *config.Config
}

type filterRequest struct {
	Key    string   `json:"key"`
	Op     string   `json:"op"`
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"`
}

type searchRequest struct {
	SourceDocumentID string          `json:"sourceDocumentId"`
	Stage0TopK       int             `json:"stage0TopK,omitempty"`
	Stage1TopK       int             `json:"stage1TopK,omitempty"`
	Stage2Threshold  float64         `json:"stage2Threshold,omitempty"`
	Stage0Filters    []filterRequest `json:"stage0Filters,omitempty"`
}

func (s *server) handleSimilaritySearch(w http.ResponseWriter, r *http.Request) {
	searchID := uuid.New().String()
	w.Header().Set("X-Search-Id", searchID)

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.SourceDocumentID == "" {
		http.Error(w, "sourceDocumentId is required", http.StatusBadRequest)
		return
	}

	slog.Info("similarity search requested", "search_id", searchID, "source_doc_id", req.SourceDocumentID)

	opts := pipeline.Options{
		Stage0TopK:      req.Stage0TopK,
		Stage1TopK:      req.Stage1TopK,
		Stage2Threshold: req.Stage2Threshold,
	}
	for _, f := range req.Stage0Filters {
		opts.Stage0Filters = append(opts.Stage0Filters, pipeline.Filter{
			Key:    f.Key,
			Op:     pipeline.FilterOp(f.Op),
			Value:  f.Value,
			Values: f.Values,
		})
	}

	result, err := s.orchestrator.ExecuteSimilaritySearch(r.Context(), req.SourceDocumentID, opts)
	if err != nil {
		stage := "orchestrator"
		var fatalErr *pipeline.FatalError
		if errors.As(err, &fatalErr) {
			stage = fatalErr.Stage
		}
		s.metrics.SearchErrorsTotal.WithLabelValues(stage).Inc()
		slog.Error("similarity search failed", "source_doc_id", req.SourceDocumentID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.metrics.SearchesTotal.Inc()
	s.metrics.ObserveStage("stage0", float64(result.Timing.Stage0Ms)/1000, result.Stages.Stage0Candidates)
	s.metrics.ObserveStage("stage1", float64(result.Timing.Stage1Ms)/1000, result.Stages.Stage1Candidates)
	s.metrics.ObserveStage("stage2", float64(result.Timing.Stage2Ms)/1000, result.Stages.FinalResults)

	if errs := sink.WriteAll(r.Context(), s.sinks, req.SourceDocumentID, result); len(errs) > 0 {
		for _, sinkErr := range errs {
			slog.Warn("result sink failed", "source_doc_id", req.SourceDocumentID, "error", sinkErr)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// countRequests wraps every response to record its final status code
// against RequestsTotal, by status.
func countRequests(m *docsimmetrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			m.RequestsTotal.WithLabelValues(strconv.Itoa(ww.Status())).Inc()
		})
	}
}

func newRouter(s *server, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(countRequests(s.metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":"%s"}`, Version)
	})

	r.Get("/metrics", docsimmetrics.Handler(reg).ServeHTTP)

	r.Post("/v1/similarity-search", s.handleSimilaritySearch)

	return r
}

// buildSinks assembles the optional result sinks, skipping any whose
// backing configuration is unset — sinks are supplemental fan-out, not
// required for the core search to function.
func buildSinks(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) []sink.ResultSink {
	sinks := []sink.ResultSink{sink.NewPostgresAuditSink(pool)}

	if cfg.Neo4jPassword != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			slog.Warn("neo4j driver unavailable, GraphReuseSink disabled", "error", err)
		} else {
			sinks = append(sinks, sink.NewGraphReuseSink(driver))
		}
	}

	if cfg.GCPProject != "" && cfg.EvidenceBucket != "" {
		gcsClient, err := storage.NewClient(ctx)
		if err != nil {
			slog.Warn("gcs client unavailable, EvidenceExportSink disabled", "error", err)
		} else {
			sinks = append(sinks, sink.NewEvidenceExportSink(gcsClient, cfg.EvidenceBucket))
		}
	}

	if cfg.GCPProject != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.GCPProject)
		if err != nil {
			slog.Warn("pubsub client unavailable, CompletionEventSink disabled", "error", err)
		} else {
			sinks = append(sinks, sink.NewCompletionEventSink(psClient.Topic(cfg.PubSubTopic)))
		}
	}

	return sinks
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cmd/searchd: load config: %w", err)
	}

	ctx := context.Background()

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("cmd/searchd: connect database: %w", err)
	}
	defer pool.Close()

	store := repository.NewPostgresMetadataStore(pool)
	var index pipeline.VectorIndex = repository.NewPostgresVectorIndex(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("cmd/searchd: parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	searchCache := cache.New(redisClient, cfg.SearchCacheTTL)
	index = cache.NewCachedVectorIndex(index, searchCache)

	reg := prometheus.NewRegistry()
	m := docsimmetrics.New(reg)

	orchestrator := pipeline.NewOrchestrator(index, store, store).WithMetrics(m)

	sinks := buildSinks(ctx, cfg, pool)
	slog.Info("result sinks wired", "count", len(sinks))

	s := &server{orchestrator: orchestrator, sinks: sinks, metrics: m, cfg: cfg}
	router := newRouter(s, reg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Stage2Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("docsim-core searchd v%s starting on port %d", Version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
