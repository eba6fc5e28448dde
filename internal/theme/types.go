// Package theme implements label canonicalization and the theme resolution
// cascade that maps free-form labels from extraction output onto stable
// theme rows.
package theme

import (
	"context"
	"errors"
)

// Theme is the resolver's view of a theme row.
type Theme struct {
	ID             int64
	Label          string
	CanonicalLabel string
	Embedding      []float64
}

// Reinforcement is a merge-reinforcement row carrying a stored source
// embedding, used to pull near-duplicate labels onto the surviving theme.
type Reinforcement struct {
	ThemeID   int64
	Embedding []float64
}

var (
	ErrNotFound  = errors.New("theme not found")
	ErrDuplicate = errors.New("theme already exists")
)

// Store is the persistence surface the resolver needs. *db.Pool satisfies it.
type Store interface {
	ThemeByID(ctx context.Context, id int64) (*Theme, error)
	ThemeByCanonicalLabel(ctx context.Context, canonical string) (*Theme, error)
	ThemeByAlias(ctx context.Context, canonicalAlias string) (*Theme, error)

	// LatestReinforcedThemeID returns the theme most recently reinforced
	// with the given canonical source label, or ErrNotFound.
	LatestReinforcedThemeID(ctx context.Context, canonicalLabel string) (int64, error)
	ListReinforcements(ctx context.Context) ([]Reinforcement, error)

	ListThemes(ctx context.Context) ([]Theme, error)

	// AddAlias records an alias for a theme. Re-adding an existing canonical
	// alias is a no-op.
	AddAlias(ctx context.Context, themeID int64, alias, canonicalAlias string, confidence float64) error

	// CreateTheme inserts a new theme and returns ErrDuplicate when another
	// writer created the same canonical label first.
	CreateTheme(ctx context.Context, label, canonical string, embedding []float64) (*Theme, error)
}

// Embedder produces one embedding per input text. Implementations may return
// empty vectors for texts they could not embed.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
