package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AmberYZ/investing-agent/internal/similarity"
	"github.com/AmberYZ/investing-agent/internal/theme"
)

const (
	maxContentSignatureChars = 8000
	contentEmbeddingBatch    = 20
)

// Options tunes candidate discovery. Zero values get the deployment defaults.
type Options struct {
	LabelThreshold      float64
	ContentThreshold    float64
	UseLabelEmbedding   bool
	UseContentEmbedding bool

	// RequireBoth keeps only pairs found by both the label and the content
	// pass when both passes produced candidates.
	RequireBoth bool

	UseSuggester bool

	MaxNarrativesPerTheme int
	MaxQuotesPerTheme     int
	MaxQuoteChars         int
	MaxThemesForSuggester int
}

func (o *Options) applyDefaults() {
	if o.LabelThreshold == 0 {
		o.LabelThreshold = 0.92
	}
	if o.ContentThreshold == 0 {
		o.ContentThreshold = 0.90
	}
	if o.MaxNarrativesPerTheme == 0 {
		o.MaxNarrativesPerTheme = 5
	}
	if o.MaxQuotesPerTheme == 0 {
		o.MaxQuotesPerTheme = 8
	}
	if o.MaxQuoteChars == 0 {
		o.MaxQuoteChars = 250
	}
	if o.MaxThemesForSuggester == 0 {
		o.MaxThemesForSuggester = 200
	}
}

type pair struct {
	a, b int64
}

func normalizePair(a, b int64) pair {
	if b < a {
		a, b = b, a
	}
	return pair{a: a, b: b}
}

// Finder discovers groups of themes that should merge. Embedder and
// suggester may be nil; the respective passes are skipped.
type Finder struct {
	store     Store
	embedder  theme.Embedder
	suggester Suggester
	opts      Options
	log       zerolog.Logger
}

func NewFinder(store Store, embedder theme.Embedder, suggester Suggester, opts Options, log zerolog.Logger) *Finder {
	opts.applyDefaults()
	return &Finder{
		store:     store,
		embedder:  embedder,
		suggester: suggester,
		opts:      opts,
		log:       log,
	}
}

// Options returns the finder's effective options after defaulting.
func (f *Finder) Options() Options {
	return f.opts
}

// WithOptions returns a copy of the Finder with the given options applied.
// The store, embedder and suggester are shared with the receiver.
func (f *Finder) WithOptions(opts Options) *Finder {
	opts.applyDefaults()
	clone := *f
	clone.opts = opts
	return &clone
}

// FindMergeSets runs the full discovery pipeline: label-embedding pairs,
// optional content-signature pairs, optional suggester groups, then the
// entity-conflict filter and union-find clustering.
func (f *Finder) FindMergeSets(ctx context.Context) ([]MergeSet, error) {
	themes, err := f.store.ListThemesWithCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	if len(themes) == 0 {
		return nil, nil
	}
	themesByID := make(map[int64]Theme, len(themes))
	for _, t := range themes {
		themesByID[t.ID] = t
	}

	var labelPairs, contentPairs []pair
	if f.opts.UseLabelEmbedding {
		labelPairs = f.labelPairs(themes)
	}
	if f.opts.UseContentEmbedding && f.embedder != nil {
		contentPairs, err = f.contentPairs(ctx, themes)
		if err != nil {
			// Content discovery is additive; a provider failure must not
			// sink the label-based candidates.
			f.log.Warn().Err(err).Msg("content embedding pass failed; continuing with label pairs only")
			contentPairs = nil
		}
	}

	var allPairs []pair
	if f.opts.RequireBoth && len(labelPairs) > 0 && len(contentPairs) > 0 {
		contentSet := map[pair]struct{}{}
		for _, p := range contentPairs {
			contentSet[normalizePair(p.a, p.b)] = struct{}{}
		}
		for _, p := range labelPairs {
			if _, ok := contentSet[normalizePair(p.a, p.b)]; ok {
				allPairs = append(allPairs, p)
			}
		}
	} else {
		allPairs = append(allPairs, labelPairs...)
		allPairs = append(allPairs, contentPairs...)
	}

	if f.opts.UseSuggester && f.suggester != nil {
		allPairs = append(allPairs, f.suggesterPairs(ctx, themes)...)
	}

	uf := newUnionFind()
	seen := map[pair]struct{}{}
	for _, p := range allPairs {
		if p.a == p.b {
			continue
		}
		themeA, okA := themesByID[p.a]
		themeB, okB := themesByID[p.b]
		if !okA || !okB {
			continue
		}
		if labelsConflictEntities(themeA.CanonicalLabel, themeB.CanonicalLabel) {
			continue
		}
		key := normalizePair(p.a, p.b)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		uf.union(p.a, p.b)
	}

	var sets []MergeSet
	for _, component := range uf.components() {
		if len(component) < 2 {
			continue
		}
		sort.Slice(component, func(i, j int) bool { return component[i] < component[j] })

		members := make([]Theme, 0, len(component))
		labels := make([]string, 0, len(component))
		for _, id := range component {
			t := themesByID[id]
			members = append(members, t)
			labels = append(labels, t.CanonicalLabel)
		}
		sets = append(sets, MergeSet{
			ThemeIDs:    component,
			CanonicalID: pickCanonical(members),
			Labels:      labels,
		})
	}
	sort.Slice(sets, func(i, j int) bool { return sets[i].ThemeIDs[0] < sets[j].ThemeIDs[0] })
	return sets, nil
}

// labelPairs compares stored label embeddings only. Themes without one are
// skipped, never implicitly matched.
func (f *Finder) labelPairs(themes []Theme) []pair {
	withEmbedding := make([]Theme, 0, len(themes))
	for _, t := range themes {
		if len(t.Embedding) > 0 {
			withEmbedding = append(withEmbedding, t)
		}
	}
	if skipped := len(themes) - len(withEmbedding); skipped > 0 {
		f.log.Info().
			Int("with_embedding", len(withEmbedding)).
			Int("skipped", skipped).
			Msg("label similarity: some themes have no stored embedding")
	}

	var pairs []pair
	for i := 0; i < len(withEmbedding); i++ {
		for j := i + 1; j < len(withEmbedding); j++ {
			score := similarity.Cosine(withEmbedding[i].Embedding, withEmbedding[j].Embedding)
			if score >= f.opts.LabelThreshold {
				pairs = append(pairs, pair{a: withEmbedding[i].ID, b: withEmbedding[j].ID})
			}
		}
	}
	return pairs
}

func (f *Finder) contentPairs(ctx context.Context, themes []Theme) ([]pair, error) {
	signatures := make([]string, len(themes))
	for i, t := range themes {
		signature, err := f.contentSignature(ctx, t)
		if err != nil {
			return nil, err
		}
		signatures[i] = signature
	}

	embeddings := make([][]float64, 0, len(signatures))
	for start := 0; start < len(signatures); start += contentEmbeddingBatch {
		end := min(start+contentEmbeddingBatch, len(signatures))
		batch := signatures[start:end]

		vectors, err := f.embedder.Embed(ctx, batch)
		if err != nil || len(vectors) != len(batch) {
			f.log.Warn().Err(err).Int("batch_start", start).Msg("content embedding batch failed")
			vectors = make([][]float64, len(batch))
		}
		embeddings = append(embeddings, vectors...)
	}

	var pairs []pair
	for i := 0; i < len(themes); i++ {
		if len(embeddings[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(themes); j++ {
			if len(embeddings[j]) == 0 {
				continue
			}
			score := similarity.Cosine(embeddings[i], embeddings[j])
			if score >= f.opts.ContentThreshold {
				pairs = append(pairs, pair{a: themes[i].ID, b: themes[j].ID})
			}
		}
	}
	if len(pairs) > 0 {
		f.log.Info().Int("pairs", len(pairs)).Msg("content embedding added candidate pairs")
	}
	return pairs, nil
}

// contentSignature builds the bounded text blob embedded for content
// similarity: label, a few narrative statements, a few evidence quotes.
func (f *Finder) contentSignature(ctx context.Context, t Theme) (string, error) {
	statements, quotes, err := f.store.ThemeContent(ctx, t.ID, f.opts.MaxNarrativesPerTheme, f.opts.MaxQuotesPerTheme)
	if err != nil {
		return "", fmt.Errorf("theme %d content: %w", t.ID, err)
	}

	parts := []string{"Theme: " + t.CanonicalLabel, "Narratives:"}
	for _, statement := range statements {
		statement = strings.TrimSpace(statement)
		if statement == "" {
			continue
		}
		parts = append(parts, truncate(statement, 500))
	}
	parts = append(parts, "Quotes:")
	for _, quote := range quotes {
		quote = strings.TrimSpace(quote)
		if quote == "" {
			continue
		}
		parts = append(parts, truncate(quote, f.opts.MaxQuoteChars))
	}
	return truncate(strings.Join(parts, "\n"), maxContentSignatureChars), nil
}

// suggesterPairs expands suggester groups into pairwise candidates. Failures
// here are advisory only.
func (f *Finder) suggesterPairs(ctx context.Context, themes []Theme) []pair {
	limit := min(len(themes), f.opts.MaxThemesForSuggester)
	labels := make([]string, 0, limit)
	byCanonical := make(map[string]int64, len(themes))
	for _, t := range themes {
		byCanonical[t.CanonicalLabel] = t.ID
	}
	for _, t := range themes[:limit] {
		labels = append(labels, t.CanonicalLabel)
	}

	groups, err := f.suggester.SuggestGroups(ctx, labels)
	if err != nil {
		f.log.Warn().Err(err).Msg("merge suggester failed, continuing without")
		return nil
	}

	var pairs []pair
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		var ids []int64
		seen := map[int64]struct{}{}
		for _, label := range group {
			id, ok := byCanonical[theme.Canonicalize(label)]
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pairs = append(pairs, pair{a: ids[i], b: ids[j]})
			}
		}
	}
	return pairs
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit]
}
