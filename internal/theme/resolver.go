package theme

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AmberYZ/investing-agent/internal/similarity"
)

const (
	confidenceAlias         = 1.0
	confidenceReinforcement = 0.98
	confidenceSimilarity    = 0.95
	confidenceContainment   = 0.90
)

// Options tunes the resolution cascade. Zero thresholds are replaced with
// the defaults used across deployments.
type Options struct {
	UseEmbedding           bool
	UseText                bool
	EmbeddingThreshold     float64
	TextThreshold          float64
	ReinforcementEnabled   bool
	ReinforcementThreshold float64
}

func (o *Options) applyDefaults() {
	if o.EmbeddingThreshold == 0 {
		o.EmbeddingThreshold = 0.92
	}
	if o.TextThreshold == 0 {
		o.TextThreshold = 0.7
	}
	if o.ReinforcementThreshold == 0 {
		o.ReinforcementThreshold = 0.8
	}
}

// Resolution reports which theme a label resolved to and how.
type Resolution struct {
	Theme   *Theme
	Stage   string
	Created bool
}

type query struct {
	raw       string
	canonical string

	embedding     []float64
	embeddingDone bool
}

type stage struct {
	name string
	run  func(ctx context.Context, q *query) (*Theme, error)
}

// Resolver maps raw labels onto themes by walking an ordered list of
// matching stages and returning the first hit. The final stage creates a
// new theme, so Resolve never reports ErrNotFound.
type Resolver struct {
	store    Store
	embedder Embedder
	opts     Options
	log      zerolog.Logger

	stages []stage
}

// NewResolver assembles the stage list once, so per-call behavior does not
// branch on provider configuration.
func NewResolver(store Store, embedder Embedder, opts Options, log zerolog.Logger) *Resolver {
	opts.applyDefaults()

	r := &Resolver{
		store:    store,
		embedder: embedder,
		opts:     opts,
		log:      log,
	}

	r.stages = []stage{
		{name: "exact", run: r.resolveExact},
		{name: "alias", run: r.resolveAlias},
	}
	if opts.ReinforcementEnabled {
		r.stages = append(r.stages, stage{name: "reinforcement", run: r.resolveReinforcement})
	}
	r.stages = append(r.stages,
		stage{name: "similarity", run: r.resolveSimilarity},
		stage{name: "containment", run: r.resolveContainment},
	)

	return r
}

// Resolve runs the cascade for one raw label.
func (r *Resolver) Resolve(ctx context.Context, rawLabel string) (*Resolution, error) {
	canonical := Canonicalize(rawLabel)
	if canonical == "" {
		return nil, fmt.Errorf("cannot resolve empty theme label")
	}

	q := &query{raw: strings.TrimSpace(rawLabel), canonical: canonical}

	for _, s := range r.stages {
		matched, err := s.run(ctx, q)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve stage %s: %w", s.name, err)
		}
		r.log.Debug().
			Str("label", q.raw).
			Str("stage", s.name).
			Int64("theme_id", matched.ID).
			Msg("theme resolved")
		return &Resolution{Theme: matched, Stage: s.name}, nil
	}

	created, err := r.createTheme(ctx, q)
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *Resolver) resolveExact(ctx context.Context, q *query) (*Theme, error) {
	return r.store.ThemeByCanonicalLabel(ctx, q.canonical)
}

func (r *Resolver) resolveAlias(ctx context.Context, q *query) (*Theme, error) {
	matched, err := r.store.ThemeByAlias(ctx, q.canonical)
	if err != nil {
		return nil, err
	}
	if err := r.store.AddAlias(ctx, matched.ID, q.raw, q.canonical, confidenceAlias); err != nil {
		return nil, fmt.Errorf("record alias: %w", err)
	}
	return matched, nil
}

func (r *Resolver) resolveReinforcement(ctx context.Context, q *query) (*Theme, error) {
	themeID, err := r.store.LatestReinforcedThemeID(ctx, q.canonical)
	if err == nil {
		return r.adopt(ctx, q, themeID, confidenceReinforcement)
	}
	if err != ErrNotFound {
		return nil, err
	}

	// The embedding scan depends only on a provider being configured, not on
	// the similarity stage's embedding toggle: reinforcement encodes explicit
	// human decisions and stays active even with embedding similarity off.
	embedding := r.ensureEmbedding(ctx, q)
	if len(embedding) == 0 {
		return nil, ErrNotFound
	}

	reinforcements, err := r.store.ListReinforcements(ctx)
	if err != nil {
		return nil, err
	}

	bestID := int64(0)
	bestScore := 0.0
	for _, reinforcement := range reinforcements {
		score := similarity.Cosine(embedding, reinforcement.Embedding)
		if score > bestScore {
			bestScore = score
			bestID = reinforcement.ThemeID
		}
	}
	if bestID == 0 || bestScore < r.opts.ReinforcementThreshold {
		return nil, ErrNotFound
	}
	return r.adopt(ctx, q, bestID, confidenceReinforcement)
}

func (r *Resolver) resolveSimilarity(ctx context.Context, q *query) (*Theme, error) {
	themes, err := r.store.ListThemes(ctx)
	if err != nil {
		return nil, err
	}
	if len(themes) == 0 {
		return nil, ErrNotFound
	}

	if r.opts.UseEmbedding {
		if matched := r.bestByEmbedding(ctx, q, themes); matched != nil {
			return r.adoptTheme(ctx, q, matched, confidenceSimilarity)
		}
	}
	if r.opts.UseText {
		if matched := bestByText(q, themes, r.opts.TextThreshold); matched != nil {
			return r.adoptTheme(ctx, q, matched, confidenceSimilarity)
		}
	}
	return nil, ErrNotFound
}

func (r *Resolver) bestByEmbedding(ctx context.Context, q *query, themes []Theme) *Theme {
	embedding := r.ensureEmbedding(ctx, q)
	if len(embedding) == 0 {
		return nil
	}

	var best *Theme
	bestScore := 0.0
	for i := range themes {
		score := similarity.Cosine(embedding, themes[i].Embedding)
		if score > bestScore {
			bestScore = score
			best = &themes[i]
		}
	}
	if best == nil || bestScore < r.opts.EmbeddingThreshold {
		return nil
	}
	return best
}

func bestByText(q *query, themes []Theme, threshold float64) *Theme {
	queryTokens := similarity.TokenSet(q.canonical)

	var best *Theme
	bestScore := 0.0
	for i := range themes {
		score := similarity.Dice(queryTokens, similarity.TokenSet(themes[i].CanonicalLabel))
		if score > bestScore {
			bestScore = score
			best = &themes[i]
		}
	}
	if best == nil || bestScore < threshold {
		return nil
	}
	return best
}

// resolveContainment matches when one canonical label contains the other as
// a substring. Among matches the shortest label wins, on the theory that the
// broader theme should absorb the narrower phrasing. Single-word labels are
// never treated as containers: "byd" must not absorb "byd ev sales".
func (r *Resolver) resolveContainment(ctx context.Context, q *query) (*Theme, error) {
	themes, err := r.store.ListThemes(ctx)
	if err != nil {
		return nil, err
	}

	var best *Theme
	for i := range themes {
		candidate := themes[i].CanonicalLabel
		if candidate == "" {
			continue
		}
		if !strings.Contains(q.canonical, candidate) && !strings.Contains(candidate, q.canonical) {
			continue
		}
		shorter := candidate
		if len(q.canonical) < len(candidate) {
			shorter = q.canonical
		}
		if len(similarity.TokenSet(shorter)) < 2 {
			continue
		}
		if best == nil ||
			len(candidate) < len(best.CanonicalLabel) ||
			(len(candidate) == len(best.CanonicalLabel) && themes[i].ID < best.ID) {
			best = &themes[i]
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return r.adoptTheme(ctx, q, best, confidenceContainment)
}

func (r *Resolver) createTheme(ctx context.Context, q *query) (*Resolution, error) {
	embedding := r.ensureEmbedding(ctx, q)

	created, err := r.store.CreateTheme(ctx, q.raw, q.canonical, embedding)
	if err == ErrDuplicate {
		// Another worker created the same canonical label between our
		// lookup and the insert. Adopt theirs.
		existing, lookupErr := r.store.ThemeByCanonicalLabel(ctx, q.canonical)
		if lookupErr != nil {
			return nil, fmt.Errorf("re-read theme after duplicate insert: %w", lookupErr)
		}
		return &Resolution{Theme: existing, Stage: "exact"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create theme: %w", err)
	}

	r.log.Info().
		Str("label", q.raw).
		Int64("theme_id", created.ID).
		Msg("created new theme")
	return &Resolution{Theme: created, Stage: "created", Created: true}, nil
}

func (r *Resolver) adopt(ctx context.Context, q *query, themeID int64, confidence float64) (*Theme, error) {
	matched, err := r.store.ThemeByID(ctx, themeID)
	if err != nil {
		return nil, fmt.Errorf("load theme %d: %w", themeID, err)
	}
	return r.adoptTheme(ctx, q, matched, confidence)
}

func (r *Resolver) adoptTheme(ctx context.Context, q *query, matched *Theme, confidence float64) (*Theme, error) {
	if q.canonical != matched.CanonicalLabel {
		if err := r.store.AddAlias(ctx, matched.ID, q.raw, q.canonical, confidence); err != nil {
			return nil, fmt.Errorf("record alias: %w", err)
		}
	}
	return matched, nil
}

// ensureEmbedding computes the query embedding at most once. Embedding
// failures degrade to text-only matching rather than failing resolution.
func (r *Resolver) ensureEmbedding(ctx context.Context, q *query) []float64 {
	if q.embeddingDone {
		return q.embedding
	}
	q.embeddingDone = true

	if r.embedder == nil {
		return nil
	}
	vectors, err := r.embedder.Embed(ctx, []string{q.canonical})
	if err != nil {
		r.log.Warn().Err(err).Str("label", q.raw).Msg("embedding failed; continuing without")
		return nil
	}
	if len(vectors) != 1 {
		return nil
	}
	q.embedding = vectors[0]
	return q.embedding
}
