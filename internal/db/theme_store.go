package db

import (
	"context"
	"fmt"

	"github.com/AmberYZ/investing-agent/internal/theme"
)

// ThemeByID implements theme.Store.
func (p *Pool) ThemeByID(ctx context.Context, id int64) (*theme.Theme, error) {
	return p.scanTheme(ctx, `
		SELECT theme_id, label, canonical_label, label_embedding
		FROM ia.themes
		WHERE theme_id = $1`, id)
}

// ThemeByCanonicalLabel implements theme.Store.
func (p *Pool) ThemeByCanonicalLabel(ctx context.Context, canonical string) (*theme.Theme, error) {
	return p.scanTheme(ctx, `
		SELECT theme_id, label, canonical_label, label_embedding
		FROM ia.themes
		WHERE canonical_label = $1`, canonical)
}

// ThemeByAlias implements theme.Store. Aliases are unique per theme, not
// globally, so two themes can carry the same alias text; the oldest entry
// wins.
func (p *Pool) ThemeByAlias(ctx context.Context, canonicalAlias string) (*theme.Theme, error) {
	return p.scanTheme(ctx, `
		SELECT t.theme_id, t.label, t.canonical_label, t.label_embedding
		FROM ia.themes t
		JOIN ia.theme_aliases a ON a.theme_id = t.theme_id
		WHERE a.canonical_alias = $1
		ORDER BY a.alias_id
		LIMIT 1`, canonicalAlias)
}

func (p *Pool) scanTheme(ctx context.Context, query string, args ...any) (*theme.Theme, error) {
	var (
		out       theme.Theme
		embedding Vector
	)
	err := p.QueryRow(ctx, query, args...).Scan(&out.ID, &out.Label, &out.CanonicalLabel, &embedding)
	if IsNoRows(err) {
		return nil, theme.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query theme: %w", err)
	}
	out.Embedding = embedding
	return &out, nil
}

// LatestReinforcedThemeID implements theme.Store.
func (p *Pool) LatestReinforcedThemeID(ctx context.Context, canonicalLabel string) (int64, error) {
	var themeID int64
	err := p.QueryRow(ctx, `
		SELECT theme_id
		FROM ia.theme_merge_reinforcement
		WHERE source_label = $1
		ORDER BY created_at DESC, reinforcement_id DESC
		LIMIT 1`, canonicalLabel).Scan(&themeID)
	if IsNoRows(err) {
		return 0, theme.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query reinforcement by label: %w", err)
	}
	return themeID, nil
}

// ListReinforcements implements theme.Store. Rows without a stored embedding
// are skipped; they are only reachable through the exact-label lookup.
func (p *Pool) ListReinforcements(ctx context.Context) ([]theme.Reinforcement, error) {
	rows, err := p.Query(ctx, `
		SELECT theme_id, source_embedding
		FROM ia.theme_merge_reinforcement
		WHERE source_embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query reinforcements: %w", err)
	}
	defer rows.Close()

	var out []theme.Reinforcement
	for rows.Next() {
		var (
			item      theme.Reinforcement
			embedding Vector
		)
		if err := rows.Scan(&item.ThemeID, &embedding); err != nil {
			return nil, fmt.Errorf("scan reinforcement: %w", err)
		}
		item.Embedding = embedding
		if len(item.Embedding) == 0 {
			continue
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reinforcements: %w", err)
	}
	return out, nil
}

// ListThemes implements theme.Store.
func (p *Pool) ListThemes(ctx context.Context) ([]theme.Theme, error) {
	rows, err := p.Query(ctx, `
		SELECT theme_id, label, canonical_label, label_embedding
		FROM ia.themes
		ORDER BY theme_id`)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	var out []theme.Theme
	for rows.Next() {
		var (
			item      theme.Theme
			embedding Vector
		)
		if err := rows.Scan(&item.ID, &item.Label, &item.CanonicalLabel, &embedding); err != nil {
			return nil, fmt.Errorf("scan theme: %w", err)
		}
		item.Embedding = embedding
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes: %w", err)
	}
	return out, nil
}

// AddAlias implements theme.Store. A repeat of an alias the theme already
// carries is a no-op so repeated resolutions stay idempotent.
func (p *Pool) AddAlias(ctx context.Context, themeID int64, alias, canonicalAlias string, confidence float64) error {
	_, err := p.Exec(ctx, `
		INSERT INTO ia.theme_aliases (theme_id, alias, canonical_alias, confidence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (theme_id, canonical_alias) DO NOTHING`,
		themeID, alias, canonicalAlias, confidence)
	if err != nil {
		return fmt.Errorf("insert alias: %w", err)
	}
	return nil
}

// CreateTheme implements theme.Store.
func (p *Pool) CreateTheme(ctx context.Context, label, canonical string, embedding []float64) (*theme.Theme, error) {
	var id int64
	err := p.QueryRow(ctx, `
		INSERT INTO ia.themes (label, canonical_label, label_embedding)
		VALUES ($1, $2, $3)
		RETURNING theme_id`,
		label, canonical, Vector(embedding)).Scan(&id)
	if IsUniqueViolation(err) {
		return nil, theme.ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert theme: %w", err)
	}
	return &theme.Theme{
		ID:             id,
		Label:          label,
		CanonicalLabel: canonical,
		Embedding:      embedding,
	}, nil
}
