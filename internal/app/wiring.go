package app

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AmberYZ/investing-agent/internal/config"
	"github.com/AmberYZ/investing-agent/internal/db"
	"github.com/AmberYZ/investing-agent/internal/llm"
	"github.com/AmberYZ/investing-agent/internal/merge"
	"github.com/AmberYZ/investing-agent/internal/theme"
	"github.com/AmberYZ/investing-agent/internal/worker"
)

// buildEmbedder returns the configured embedder wrapped in the TTL cache, or
// nil when embeddings are disabled.
func buildEmbedder(cfg *config.Config, logger zerolog.Logger) (theme.Embedder, error) {
	inner, err := llm.NewEmbedder(llm.EmbedderConfig{
		Provider: cfg.EmbeddingProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.EmbeddingModel,
		Timeout:  time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}, logger)
	if err != nil || inner == nil {
		return nil, err
	}
	return llm.NewCachedEmbedder(
		inner,
		time.Duration(cfg.EmbeddingCacheTTL)*time.Second,
		cfg.EmbeddingCacheMax,
	), nil
}

// buildChatClient returns nil without error when no API key is configured;
// callers fall back to heuristics.
func buildChatClient(cfg *config.Config, logger zerolog.Logger) (*llm.Client, error) {
	if strings.TrimSpace(cfg.LLMAPIKey) == "" {
		return nil, nil
	}
	return llm.NewClient(llm.ClientConfig{
		APIKey:            cfg.LLMAPIKey,
		Model:             cfg.LLMModel,
		BaseURL:           cfg.LLMBaseURL,
		Timeout:           time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		DelayAfterRequest: time.Duration(cfg.LLMDelaySeconds * float64(time.Second)),
	}, logger)
}

func buildExtractor(cfg *config.Config, logger zerolog.Logger) (worker.Extractor, error) {
	client, err := buildChatClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logger.Warn().Msg("no llm api key configured; using heuristic extraction")
		return llm.NewHeuristicExtractor(), nil
	}
	return llm.NewExtractor(client), nil
}

func buildResolver(pool *db.Pool, embedder theme.Embedder, cfg *config.Config, logger zerolog.Logger) *theme.Resolver {
	return theme.NewResolver(pool, embedder, theme.Options{
		UseEmbedding:           cfg.ThemeUseEmbeddingSimilarity && embedder != nil,
		UseText:                cfg.ThemeUseTextSimilarity,
		EmbeddingThreshold:     cfg.ThemeEmbeddingThreshold,
		TextThreshold:          cfg.ThemeTextThreshold,
		ReinforcementEnabled:   cfg.ReinforcementEnabled,
		ReinforcementThreshold: cfg.ReinforcementThreshold,
	}, logger)
}

func buildMergeFinder(pool *db.Pool, embedder theme.Embedder, cfg *config.Config, logger zerolog.Logger) (*merge.Finder, error) {
	var suggester merge.Suggester
	if cfg.MergeUseSuggester {
		client, err := buildChatClient(cfg, logger)
		if err != nil {
			return nil, err
		}
		if client == nil {
			logger.Warn().Msg("merge suggester enabled but no llm api key configured; skipping suggester pass")
		} else {
			suggester = llm.NewMergeSuggester(client)
		}
	}

	return merge.NewFinder(pool, embedder, suggester, merge.Options{
		LabelThreshold:      cfg.MergeLabelThreshold,
		ContentThreshold:    cfg.MergeContentThreshold,
		UseLabelEmbedding:   embedder != nil,
		UseContentEmbedding: cfg.MergeUseContentEmbedding && embedder != nil,
		RequireBoth:         cfg.MergeRequireBoth,
		UseSuggester:        suggester != nil,
	}, logger), nil
}
