package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int
	RedisURL         string
	SearchCacheTTL   time.Duration
	Neo4jURI         string
	Neo4jUser        string
	Neo4jPassword    string
	GCPProject       string
	EvidenceBucket   string
	PubSubTopic      string

	// Chunker defaults (spec §4.2, overridable per environment).
	ChunkMaxCharacters int
	ChunkMinCharacters int

	// Pipeline stage defaults (spec §6). Load reads them from the
	// environment, but nothing passes them to pipeline.Options, which
	// takes its defaults from pipeline.ResolveOptions; cmd/searchd uses
	// Stage2Timeout only to size the HTTP server's write timeout.
	Stage0TopK              int
	Stage1TopK              int
	Stage1BatchSize         int
	Stage2Threshold         float64
	Stage2FallbackThreshold float64
	Stage2Timeout           time.Duration
}

// Load reads configuration from environment variables. DATABASE_URL is
// the only required variable; everything else falls back to the
// spec-documented default.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),
		RedisURL:         envStr("REDIS_URL", "redis://localhost:6379/0"),
		SearchCacheTTL:   envDuration("SEARCH_CACHE_TTL", 10*time.Minute),
		Neo4jURI:         envStr("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:        envStr("NEO4J_USER", "neo4j"),
		Neo4jPassword:    envStr("NEO4J_PASSWORD", ""),
		GCPProject:       envStr("GOOGLE_CLOUD_PROJECT", ""),
		EvidenceBucket:   envStr("EVIDENCE_BUCKET_NAME", ""),
		PubSubTopic:      envStr("COMPLETION_TOPIC", "similarity-search-completed"),

		ChunkMaxCharacters: envInt("CHUNK_MAX_CHARACTERS", 2000),
		ChunkMinCharacters: envInt("CHUNK_MIN_CHARACTERS", 120),

		Stage0TopK:              envInt("STAGE0_TOPK", 600),
		Stage1TopK:              envInt("STAGE1_TOPK", 250),
		Stage1BatchSize:         envInt("STAGE1_BATCH_SIZE", 150),
		Stage2Threshold:         envFloat("STAGE2_THRESHOLD", 0.85),
		Stage2FallbackThreshold: envFloat("STAGE2_FALLBACK_THRESHOLD", 0.80),
		Stage2Timeout:           envDuration("STAGE2_TIMEOUT", 180*time.Second),
	}

	if cfg.ChunkMinCharacters >= cfg.ChunkMaxCharacters {
		return nil, fmt.Errorf("config.Load: CHUNK_MIN_CHARACTERS (%d) must be less than CHUNK_MAX_CHARACTERS (%d)", cfg.ChunkMinCharacters, cfg.ChunkMaxCharacters)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
