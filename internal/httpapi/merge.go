package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/AmberYZ/investing-agent/internal/merge"
	"github.com/AmberYZ/investing-agent/internal/metrics"
)

type mergeRequest struct {
	SourceThemeID int64 `json:"source_theme_id"`
	TargetThemeID int64 `json:"target_theme_id"`
}

type mergeSetItem struct {
	ThemeIDs    []int64  `json:"theme_ids"`
	CanonicalID int64    `json:"canonical_theme_id"`
	Labels      []string `json:"labels"`
}

// handleSuggestMerges runs candidate discovery over the full theme table.
// This walks every theme pair, so it is an admin endpoint, not a hot path.
// Query parameters override the configured thresholds for a single call.
func (s *Server) handleSuggestMerges(c echo.Context) error {
	if s.finder == nil {
		return fail(c, http.StatusServiceUnavailable, "Merge suggestions are not configured", nil)
	}

	opts, changed, problems := mergeOptionsFromQuery(c, s.finder.Options())
	if len(problems) > 0 {
		return failValidation(c, problems)
	}
	finder := s.finder
	if changed {
		finder = finder.WithOptions(opts)
	}

	sets, err := finder.FindMergeSets(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("merge candidate discovery failed")
		return internalError(c, "Failed to compute merge suggestions")
	}

	items := make([]mergeSetItem, 0, len(sets))
	for _, set := range sets {
		items = append(items, mergeSetItem{
			ThemeIDs:    set.ThemeIDs,
			CanonicalID: set.CanonicalID,
			Labels:      set.Labels,
		})
	}
	return success(c, map[string]any{
		"items": items,
	})
}

// mergeOptionsFromQuery applies per-request overrides to the configured
// discovery options. Returns the validation problems keyed by parameter.
func mergeOptionsFromQuery(c echo.Context, base merge.Options) (merge.Options, bool, map[string]string) {
	changed := false
	problems := map[string]string{}

	threshold := func(name string, dst *float64) {
		raw := c.QueryParam(name)
		if raw == "" {
			return
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 1 {
			problems[name] = "must be a number in (0, 1]"
			return
		}
		*dst = v
		changed = true
	}
	boolean := func(name string, dst *bool) {
		raw := c.QueryParam(name)
		if raw == "" {
			return
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			problems[name] = "must be true or false"
			return
		}
		*dst = v
		changed = true
	}

	threshold("label_threshold", &base.LabelThreshold)
	threshold("content_threshold", &base.ContentThreshold)
	boolean("use_content_embedding", &base.UseContentEmbedding)
	boolean("require_both", &base.RequireBoth)
	boolean("use_suggester", &base.UseSuggester)

	return base, changed, problems
}

func (s *Server) handleMerge(c echo.Context) error {
	var req mergeRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be JSON with source_theme_id and target_theme_id"})
	}
	if req.SourceThemeID <= 0 {
		return failValidation(c, map[string]string{"source_theme_id": "must be a positive integer"})
	}
	if req.TargetThemeID <= 0 {
		return failValidation(c, map[string]string{"target_theme_id": "must be a positive integer"})
	}

	moved, err := s.executor.Merge(c.Request().Context(), req.SourceThemeID, req.TargetThemeID)
	if err != nil {
		if errors.Is(err, merge.ErrThemeNotFound) {
			return failNotFound(c, "Source or target theme not found")
		}
		s.logger.Error().Err(err).
			Int64("source_theme_id", req.SourceThemeID).
			Int64("target_theme_id", req.TargetThemeID).
			Msg("theme merge failed")
		return internalError(c, "Failed to merge themes")
	}

	metrics.MergesExecutedTotal.Inc()
	return success(c, map[string]any{
		"source_theme_id":  req.SourceThemeID,
		"target_theme_id":  req.TargetThemeID,
		"narratives_moved": moved,
	})
}
