package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/AmberYZ/investing-agent/internal/globaltime"
	"github.com/AmberYZ/investing-agent/internal/theme"
)

const embeddingBatchSize = 20

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Provider string // "openai" or "none"
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewEmbedder dispatches on the configured provider once, at construction.
// A "none" provider (or a missing API key) yields a nil Embedder, which
// callers treat as embeddings-disabled; per-call code never re-checks
// provider settings.
func NewEmbedder(cfg EmbedderConfig, log zerolog.Logger) (theme.Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.APIKey == "" {
			log.Warn().Msg("embedding provider is openai but no api key is set; embeddings disabled")
			return nil, nil
		}
		if cfg.Model == "" {
			cfg.Model = "text-embedding-3-small"
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = 180 * time.Second
		}
		return &openaiEmbedder{
			api:     openai.NewClient(cfg.APIKey),
			model:   cfg.Model,
			timeout: cfg.Timeout,
			log:     log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

type openaiEmbedder struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	log     zerolog.Logger
}

// Embed returns one vector per input text. A failed batch degrades to empty
// vectors for its texts; callers treat an empty vector as "no embedding".
func (e *openaiEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += embeddingBatchSize {
		end := min(start+embeddingBatchSize, len(texts))
		batch := texts[start:end]

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.log.Warn().Err(err).Int("batch_start", start).Msg("embedding batch failed")
			vectors = make([][]float64, len(batch))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *openaiEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.api.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want %d", len(resp.Data), len(batch))
	}

	vectors := make([][]float64, len(batch))
	for i, data := range resp.Data {
		vector := make([]float64, len(data.Embedding))
		for j, value := range data.Embedding {
			vector[j] = float64(value)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

type cacheEntry struct {
	vector   []float64
	storedAt time.Time
}

// CachedEmbedder memoizes embeddings per text with a TTL and a bounded entry
// count. Resolution embeds the same canonical labels over and over; caching
// them keeps repeat lookups off the provider.
type CachedEmbedder struct {
	inner      theme.Embedder
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
}

// NewCachedEmbedder wraps inner with a TTL cache. A nil inner returns nil so
// the embeddings-disabled case stays a nil Embedder.
func NewCachedEmbedder(inner theme.Embedder, ttl time.Duration, maxEntries int) *CachedEmbedder {
	if inner == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 2048
	}
	return &CachedEmbedder{
		inner:      inner,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        globaltime.Now,
		entries:    map[string]cacheEntry{},
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	var missingIdx []int

	c.mu.Lock()
	now := c.now()
	for i, text := range texts {
		entry, ok := c.entries[text]
		if ok && now.Sub(entry.storedAt) < c.ttl && len(entry.vector) > 0 {
			out[i] = entry.vector
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, vector := range vectors {
		out[missingIdx[i]] = vector
		if len(vector) == 0 {
			// Do not cache failures; the next call should retry them.
			continue
		}
		if _, exists := c.entries[missing[i]]; !exists {
			c.order = append(c.order, missing[i])
		}
		c.entries[missing[i]] = cacheEntry{vector: vector, storedAt: c.now()}
		for len(c.entries) > c.maxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
	}
	return out, nil
}
