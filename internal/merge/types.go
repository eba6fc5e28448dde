// Package merge discovers themes that describe the same underlying thesis
// and folds one theme into another without losing narratives, aliases, or
// daily statistics.
package merge

import (
	"context"
	"errors"
)

// Theme is the candidate finder's view of a theme row, including the
// activity counts the canonical selector tie-breaks on.
type Theme struct {
	ID             int64
	Label          string
	CanonicalLabel string
	Embedding      []float64
	NarrativeCount int
	EvidenceCount  int
}

// MergeSet is one group of themes to merge, with the chosen surviving theme.
type MergeSet struct {
	ThemeIDs    []int64
	CanonicalID int64
	Labels      []string
}

var ErrThemeNotFound = errors.New("merge: theme not found")

// Store is the read surface the candidate finder needs. *db.Pool satisfies it.
type Store interface {
	ListThemesWithCounts(ctx context.Context) ([]Theme, error)

	// ThemeContent returns up to maxStatements narrative statements and
	// maxQuotes evidence quotes for one theme.
	ThemeContent(ctx context.Context, themeID int64, maxStatements, maxQuotes int) (statements, quotes []string, err error)
}

// Suggester proposes groups of labels that likely name the same theme.
// Implementations are advisory: errors are logged and ignored.
type Suggester interface {
	SuggestGroups(ctx context.Context, labels []string) ([][]string, error)
}
