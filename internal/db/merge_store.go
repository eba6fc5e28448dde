package db

import (
	"context"
	"fmt"

	"github.com/AmberYZ/investing-agent/internal/merge"
)

// ListThemesWithCounts implements merge.Store.
func (p *Pool) ListThemesWithCounts(ctx context.Context) ([]merge.Theme, error) {
	rows, err := p.Query(ctx, `
		SELECT t.theme_id,
		       t.label,
		       t.canonical_label,
		       t.label_embedding,
		       (SELECT COUNT(*) FROM ia.narratives n WHERE n.theme_id = t.theme_id) AS narrative_count,
		       (SELECT COUNT(*)
		          FROM ia.evidence e
		          JOIN ia.narratives n ON n.narrative_id = e.narrative_id
		         WHERE n.theme_id = t.theme_id) AS evidence_count
		FROM ia.themes t
		ORDER BY t.theme_id`)
	if err != nil {
		return nil, fmt.Errorf("query themes with counts: %w", err)
	}
	defer rows.Close()

	var out []merge.Theme
	for rows.Next() {
		var (
			item      merge.Theme
			embedding Vector
		)
		if err := rows.Scan(&item.ID, &item.Label, &item.CanonicalLabel, &embedding,
			&item.NarrativeCount, &item.EvidenceCount); err != nil {
			return nil, fmt.Errorf("scan theme with counts: %w", err)
		}
		item.Embedding = embedding
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate themes with counts: %w", err)
	}
	return out, nil
}

// ThemeContent implements merge.Store.
func (p *Pool) ThemeContent(ctx context.Context, themeID int64, maxStatements, maxQuotes int) ([]string, []string, error) {
	statements, err := p.queryStrings(ctx, `
		SELECT statement
		FROM ia.narratives
		WHERE theme_id = $1
		ORDER BY narrative_id
		LIMIT $2`, themeID, maxStatements)
	if err != nil {
		return nil, nil, fmt.Errorf("query narrative statements: %w", err)
	}

	quotes, err := p.queryStrings(ctx, `
		SELECT e.quote
		FROM ia.evidence e
		JOIN ia.narratives n ON n.narrative_id = e.narrative_id
		WHERE n.theme_id = $1
		ORDER BY e.evidence_id
		LIMIT $2`, themeID, maxQuotes)
	if err != nil {
		return nil, nil, fmt.Errorf("query evidence quotes: %w", err)
	}
	return statements, quotes, nil
}

func (p *Pool) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

// WithTx implements merge.TxStore.
func (p *Pool) WithTx(ctx context.Context, fn func(tx merge.Tx) error) error {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin merge transaction: %w", err)
	}
	if err := fn(&mergeTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge transaction: %w", err)
	}
	return nil
}

type mergeTx struct {
	tx Tx
}

func (m *mergeTx) ThemeForMerge(ctx context.Context, id int64) (string, []float64, error) {
	var (
		canonical string
		embedding Vector
	)
	err := m.tx.QueryRow(ctx, `
		SELECT canonical_label, label_embedding
		FROM ia.themes
		WHERE theme_id = $1`, id).Scan(&canonical, &embedding)
	if IsNoRows(err) {
		return "", nil, merge.ErrThemeNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("query theme for merge: %w", err)
	}
	return canonical, embedding, nil
}

// MoveNarratives reassigns source narratives to the target. Statements are
// unique per theme, so a statement the target already carries is folded into
// the target's row: evidence repointed, seen range widened, source row
// deleted.
func (m *mergeTx) MoveNarratives(ctx context.Context, sourceID, targetID int64) (int, error) {
	if _, err := m.tx.Exec(ctx, `
		UPDATE ia.evidence e
		SET narrative_id = tgt.narrative_id
		FROM ia.narratives src
		JOIN ia.narratives tgt
		  ON tgt.theme_id = $2 AND tgt.statement = src.statement
		WHERE e.narrative_id = src.narrative_id
		  AND src.theme_id = $1`, sourceID, targetID); err != nil {
		return 0, fmt.Errorf("repoint duplicate evidence: %w", err)
	}
	if _, err := m.tx.Exec(ctx, `
		UPDATE ia.narratives tgt
		SET first_seen_at = LEAST(tgt.first_seen_at, src.first_seen_at),
		    last_seen_at = GREATEST(tgt.last_seen_at, src.last_seen_at),
		    updated_at = now()
		FROM ia.narratives src
		WHERE tgt.theme_id = $2
		  AND src.theme_id = $1
		  AND src.statement = tgt.statement`, sourceID, targetID); err != nil {
		return 0, fmt.Errorf("fold duplicate narratives: %w", err)
	}
	folded, err := m.tx.Exec(ctx, `
		DELETE FROM ia.narratives src
		WHERE src.theme_id = $1
		  AND EXISTS (
			SELECT 1 FROM ia.narratives tgt
			WHERE tgt.theme_id = $2 AND tgt.statement = src.statement
		  )`, sourceID, targetID)
	if err != nil {
		return 0, fmt.Errorf("delete duplicate narratives: %w", err)
	}

	moved, err := m.tx.Exec(ctx, `
		UPDATE ia.narratives
		SET theme_id = $2, updated_at = now()
		WHERE theme_id = $1`, sourceID, targetID)
	if err != nil {
		return 0, err
	}
	return int(moved.RowsAffected() + folded.RowsAffected()), nil
}

func (m *mergeTx) MoveAliases(ctx context.Context, sourceID, targetID int64) error {
	// Aliases are unique per (theme_id, canonical_alias). Move only the
	// source aliases the target does not already carry, then drop the rest.
	if _, err := m.tx.Exec(ctx, `
		UPDATE ia.theme_aliases
		SET theme_id = $2
		WHERE theme_id = $1
		  AND canonical_alias NOT IN (
			SELECT canonical_alias FROM ia.theme_aliases WHERE theme_id = $2
		  )`, sourceID, targetID); err != nil {
		return fmt.Errorf("move aliases: %w", err)
	}
	if _, err := m.tx.Exec(ctx, `
		DELETE FROM ia.theme_aliases WHERE theme_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete source aliases: %w", err)
	}
	return nil
}

func (m *mergeTx) MergeDailyCounts(ctx context.Context, sourceID, targetID int64) error {
	steps := []struct {
		name   string
		merge  string
		delete string
	}{
		{
			name: "theme mentions",
			merge: `
				INSERT INTO ia.theme_mentions_daily (theme_id, day, mention_count)
				SELECT $2, day, mention_count
				FROM ia.theme_mentions_daily
				WHERE theme_id = $1
				ON CONFLICT (theme_id, day) DO UPDATE
				SET mention_count = ia.theme_mentions_daily.mention_count + EXCLUDED.mention_count`,
			delete: `DELETE FROM ia.theme_mentions_daily WHERE theme_id = $1`,
		},
		{
			name: "theme relations",
			// Relation rows keep theme_id < other_theme_id, so the source
			// can sit on either side of the pair.
			merge: `
				INSERT INTO ia.theme_relation_daily (theme_id, other_theme_id, day, co_mention_count)
				SELECT LEAST($2, partner), GREATEST($2, partner), day, SUM(co_mention_count)
				FROM (
					SELECT other_theme_id AS partner, day, co_mention_count
					FROM ia.theme_relation_daily WHERE theme_id = $1
					UNION ALL
					SELECT theme_id AS partner, day, co_mention_count
					FROM ia.theme_relation_daily WHERE other_theme_id = $1
				) src
				WHERE partner <> $2
				GROUP BY partner, day
				ON CONFLICT (theme_id, other_theme_id, day) DO UPDATE
				SET co_mention_count = ia.theme_relation_daily.co_mention_count + EXCLUDED.co_mention_count`,
			delete: `DELETE FROM ia.theme_relation_daily WHERE theme_id = $1 OR other_theme_id = $1`,
		},
		{
			name: "sub-theme mentions",
			merge: `
				INSERT INTO ia.theme_sub_theme_mentions_daily (theme_id, sub_theme_label, day, mention_count)
				SELECT $2, sub_theme_label, day, mention_count
				FROM ia.theme_sub_theme_mentions_daily
				WHERE theme_id = $1
				ON CONFLICT (theme_id, sub_theme_label, day) DO UPDATE
				SET mention_count = ia.theme_sub_theme_mentions_daily.mention_count + EXCLUDED.mention_count`,
			delete: `DELETE FROM ia.theme_sub_theme_mentions_daily WHERE theme_id = $1`,
		},
	}

	for _, step := range steps {
		if _, err := m.tx.Exec(ctx, step.merge, sourceID, targetID); err != nil {
			return fmt.Errorf("merge %s daily rows: %w", step.name, err)
		}
		if _, err := m.tx.Exec(ctx, step.delete, sourceID); err != nil {
			return fmt.Errorf("delete source %s daily rows: %w", step.name, err)
		}
	}
	return nil
}

func (m *mergeTx) AppendReinforcement(ctx context.Context, targetID int64, sourceLabel string, sourceEmbedding []float64) error {
	_, err := m.tx.Exec(ctx, `
		INSERT INTO ia.theme_merge_reinforcement (theme_id, source_label, source_embedding)
		VALUES ($1, $2, $3)`,
		targetID, sourceLabel, Vector(sourceEmbedding))
	if err != nil {
		return fmt.Errorf("insert reinforcement: %w", err)
	}
	return nil
}

func (m *mergeTx) DeleteTheme(ctx context.Context, id int64) error {
	if _, err := m.tx.Exec(ctx, `
		DELETE FROM ia.themes WHERE theme_id = $1`, id); err != nil {
		return fmt.Errorf("delete theme: %w", err)
	}
	return nil
}
