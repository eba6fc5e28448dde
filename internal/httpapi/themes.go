package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/AmberYZ/investing-agent/internal/db"
)

var errThemeNotFound = errors.New("theme not found")

type themeListItem struct {
	ThemeID        int64      `json:"theme_id"`
	Label          string     `json:"label"`
	CanonicalLabel string     `json:"canonical_label"`
	NarrativeCount int        `json:"narrative_count"`
	EvidenceCount  int        `json:"evidence_count"`
	AliasCount     int        `json:"alias_count"`
	LastMentionDay *time.Time `json:"last_mention_day,omitempty"`
}

type themeAliasItem struct {
	Alias      string  `json:"alias"`
	Confidence float64 `json:"confidence"`
}

type themeNarrativeItem struct {
	NarrativeID   int64     `json:"narrative_id"`
	Statement     string    `json:"statement"`
	SubTheme      string    `json:"sub_theme,omitempty"`
	Stance        string    `json:"narrative_stance,omitempty"`
	Confidence    string    `json:"confidence_level,omitempty"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	EvidenceCount int       `json:"evidence_count"`
}

type themeDetail struct {
	Theme      themeListItem        `json:"theme"`
	Aliases    []themeAliasItem     `json:"aliases"`
	Narratives []themeNarrativeItem `json:"narratives"`
}

func (s *Server) handleThemes(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	query := strings.TrimSpace(c.QueryParam("q"))

	items, err := s.queryThemeList(c.Request().Context(), query, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query themes failed")
		return internalError(c, "Failed to load themes")
	}
	return success(c, map[string]any{
		"items": items,
		"q":     query,
		"limit": limit,
	})
}

func (s *Server) handleThemeDetail(c echo.Context) error {
	themeID, err := parseID(c.Param("theme_id"))
	if err != nil {
		return failValidation(c, map[string]string{"theme_id": err.Error()})
	}

	detail, err := s.queryThemeDetail(c.Request().Context(), themeID)
	if err != nil {
		if errors.Is(err, errThemeNotFound) {
			return failNotFound(c, "Theme not found")
		}
		s.logger.Error().Err(err).Int64("theme_id", themeID).Msg("query theme detail failed")
		return internalError(c, "Failed to load theme")
	}
	return success(c, detail)
}

func (s *Server) queryThemeList(ctx context.Context, query string, limit int) ([]themeListItem, error) {
	search := ""
	if query != "" {
		search = "%" + query + "%"
	}

	const q = `
SELECT
	t.theme_id,
	t.label,
	t.canonical_label,
	(SELECT COUNT(*) FROM ia.narratives n WHERE n.theme_id = t.theme_id) AS narrative_count,
	(SELECT COUNT(*)
	   FROM ia.evidence e
	   JOIN ia.narratives n ON n.narrative_id = e.narrative_id
	  WHERE n.theme_id = t.theme_id) AS evidence_count,
	(SELECT COUNT(*) FROM ia.theme_aliases a WHERE a.theme_id = t.theme_id) AS alias_count,
	(SELECT MAX(day) FROM ia.theme_mentions_daily m WHERE m.theme_id = t.theme_id) AS last_mention_day
FROM ia.themes t
WHERE ($1 = '' OR t.label ILIKE $1 OR t.canonical_label ILIKE $1)
ORDER BY narrative_count DESC, t.theme_id
LIMIT $2
`

	rows, err := s.pool.Query(ctx, q, search, limit)
	if err != nil {
		return nil, fmt.Errorf("query themes: %w", err)
	}
	defer rows.Close()

	items := make([]themeListItem, 0, limit)
	for rows.Next() {
		var row themeListItem
		if err := rows.Scan(
			&row.ThemeID,
			&row.Label,
			&row.CanonicalLabel,
			&row.NarrativeCount,
			&row.EvidenceCount,
			&row.AliasCount,
			&row.LastMentionDay,
		); err != nil {
			return nil, fmt.Errorf("scan theme row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate theme rows: %w", err)
	}
	return items, nil
}

func (s *Server) queryThemeDetail(ctx context.Context, themeID int64) (*themeDetail, error) {
	const themeQuery = `
SELECT
	t.theme_id,
	t.label,
	t.canonical_label,
	(SELECT COUNT(*) FROM ia.narratives n WHERE n.theme_id = t.theme_id) AS narrative_count,
	(SELECT COUNT(*)
	   FROM ia.evidence e
	   JOIN ia.narratives n ON n.narrative_id = e.narrative_id
	  WHERE n.theme_id = t.theme_id) AS evidence_count,
	(SELECT COUNT(*) FROM ia.theme_aliases a WHERE a.theme_id = t.theme_id) AS alias_count,
	(SELECT MAX(day) FROM ia.theme_mentions_daily m WHERE m.theme_id = t.theme_id) AS last_mention_day
FROM ia.themes t
WHERE t.theme_id = $1
`

	var detail themeDetail
	if err := s.pool.QueryRow(ctx, themeQuery, themeID).Scan(
		&detail.Theme.ThemeID,
		&detail.Theme.Label,
		&detail.Theme.CanonicalLabel,
		&detail.Theme.NarrativeCount,
		&detail.Theme.EvidenceCount,
		&detail.Theme.AliasCount,
		&detail.Theme.LastMentionDay,
	); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return nil, errThemeNotFound
		}
		return nil, fmt.Errorf("query theme: %w", err)
	}

	const aliasQuery = `
SELECT alias, confidence
FROM ia.theme_aliases
WHERE theme_id = $1
ORDER BY alias_id
`
	aliasRows, err := s.pool.Query(ctx, aliasQuery, themeID)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer aliasRows.Close()

	detail.Aliases = []themeAliasItem{}
	for aliasRows.Next() {
		var alias themeAliasItem
		if err := aliasRows.Scan(&alias.Alias, &alias.Confidence); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		detail.Aliases = append(detail.Aliases, alias)
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aliases: %w", err)
	}

	const narrativeQuery = `
SELECT
	n.narrative_id,
	n.statement,
	n.sub_theme,
	n.narrative_stance,
	n.confidence_level,
	n.first_seen_at,
	n.last_seen_at,
	(SELECT COUNT(*) FROM ia.evidence e WHERE e.narrative_id = n.narrative_id) AS evidence_count
FROM ia.narratives n
WHERE n.theme_id = $1
ORDER BY n.last_seen_at DESC, n.narrative_id DESC
`
	narrativeRows, err := s.pool.Query(ctx, narrativeQuery, themeID)
	if err != nil {
		return nil, fmt.Errorf("query narratives: %w", err)
	}
	defer narrativeRows.Close()

	detail.Narratives = []themeNarrativeItem{}
	for narrativeRows.Next() {
		var narrative themeNarrativeItem
		if err := narrativeRows.Scan(
			&narrative.NarrativeID,
			&narrative.Statement,
			&narrative.SubTheme,
			&narrative.Stance,
			&narrative.Confidence,
			&narrative.FirstSeenAt,
			&narrative.LastSeenAt,
			&narrative.EvidenceCount,
		); err != nil {
			return nil, fmt.Errorf("scan narrative: %w", err)
		}
		detail.Narratives = append(detail.Narratives, narrative)
	}
	if err := narrativeRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate narratives: %w", err)
	}

	return &detail, nil
}
