package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"IA_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"IA_DB_MAX_CONNS" default:"8"`

	// Blob storage for uploaded document bytes.
	StorageDir string `envconfig:"LOCAL_STORAGE_DIR" default:".local_storage"`

	// LLM API used for theme/narrative extraction and merge-group suggestions.
	// When LLM_API_KEY is empty the worker falls back to heuristic extraction.
	LLMAPIKey         string  `envconfig:"LLM_API_KEY" default:""`
	LLMModel          string  `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMBaseURL        string  `envconfig:"LLM_BASE_URL" default:""`
	LLMTimeoutSeconds int     `envconfig:"LLM_TIMEOUT_SECONDS" default:"180"`
	LLMMaxConcurrent  int     `envconfig:"LLM_MAX_CONCURRENT_REQUESTS" default:"3"`
	LLMDelaySeconds   float64 `envconfig:"LLM_DELAY_AFTER_REQUEST_SECONDS" default:"0"`

	// Embedding provider: "openai" or "none". Empty vectors are returned when
	// disabled so every caller degrades to text-only matching.
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingCacheTTL int    `envconfig:"EMBEDDING_CACHE_TTL_SECONDS" default:"900"`
	EmbeddingCacheMax int    `envconfig:"EMBEDDING_CACHE_MAX_ENTRIES" default:"2048"`

	// Theme resolution thresholds (see theme.Resolver).
	ThemeUseEmbeddingSimilarity bool    `envconfig:"THEME_SIMILARITY_USE_EMBEDDING" default:"true"`
	ThemeUseTextSimilarity      bool    `envconfig:"THEME_SIMILARITY_USE_TEXT" default:"true"`
	ThemeEmbeddingThreshold     float64 `envconfig:"THEME_SIMILARITY_EMBEDDING_THRESHOLD" default:"0.92"`
	ThemeTextThreshold          float64 `envconfig:"THEME_SIMILARITY_TEXT_THRESHOLD" default:"0.7"`
	ReinforcementEnabled        bool    `envconfig:"THEME_MERGE_REINFORCEMENT_ENABLED" default:"true"`
	ReinforcementThreshold      float64 `envconfig:"THEME_MERGE_REINFORCEMENT_THRESHOLD" default:"0.8"`

	// Merge candidate discovery defaults (overridable per request).
	MergeLabelThreshold      float64 `envconfig:"THEME_MERGE_LABEL_THRESHOLD" default:"0.92"`
	MergeContentThreshold    float64 `envconfig:"THEME_MERGE_CONTENT_THRESHOLD" default:"0.90"`
	MergeUseContentEmbedding bool    `envconfig:"THEME_MERGE_USE_CONTENT_EMBEDDING" default:"false"`
	MergeRequireBoth         bool    `envconfig:"THEME_MERGE_REQUIRE_BOTH" default:"false"`
	MergeUseSuggester        bool    `envconfig:"THEME_MERGE_USE_LLM_SUGGEST" default:"false"`

	// Ingest worker pool.
	WorkerMaxJobs     int `envconfig:"WORKER_MAX_JOBS" default:"4"`
	WorkerPollSeconds int `envconfig:"WORKER_POLL_SECONDS" default:"2"`

	// Ingest queue cap: reject new documents when queued+processing >= this (0 = no cap).
	MaxQueuedIngestJobs int `envconfig:"MAX_QUEUED_INGEST_JOBS" default:"0"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("IA_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("IA_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("IA_DB_MIN_CONNS (%d) cannot exceed IA_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	switch strings.ToLower(strings.TrimSpace(c.EmbeddingProvider)) {
	case "openai", "none":
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be openai or none")
	}
	if c.LLMMaxConcurrent < 1 {
		return fmt.Errorf("LLM_MAX_CONCURRENT_REQUESTS must be >= 1")
	}
	if c.WorkerMaxJobs < 1 {
		return fmt.Errorf("WORKER_MAX_JOBS must be >= 1")
	}
	if c.WorkerPollSeconds < 1 {
		return fmt.Errorf("WORKER_POLL_SECONDS must be >= 1")
	}
	thresholds := map[string]float64{
		"THEME_SIMILARITY_EMBEDDING_THRESHOLD": c.ThemeEmbeddingThreshold,
		"THEME_SIMILARITY_TEXT_THRESHOLD":      c.ThemeTextThreshold,
		"THEME_MERGE_REINFORCEMENT_THRESHOLD":  c.ReinforcementThreshold,
		"THEME_MERGE_LABEL_THRESHOLD":          c.MergeLabelThreshold,
		"THEME_MERGE_CONTENT_THRESHOLD":        c.MergeContentThreshold,
	}
	for name, value := range thresholds {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	return nil
}

// EmbeddingEnabled reports whether an embedding backend is configured.
func (c *Config) EmbeddingEnabled() bool {
	if c == nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(c.EmbeddingProvider), "none") {
		return false
	}
	return strings.TrimSpace(c.LLMAPIKey) != ""
}
