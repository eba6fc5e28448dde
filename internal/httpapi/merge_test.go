package httpapi

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/AmberYZ/investing-agent/internal/merge"
)

func queryContext(t *testing.T, rawQuery string) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest("GET", "/api/v1/admin/themes/suggest-merges?"+rawQuery, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestMergeOptionsFromQuery_NoParams(t *testing.T) {
	t.Parallel()

	base := merge.Options{LabelThreshold: 0.92, ContentThreshold: 0.90}
	got, changed, problems := mergeOptionsFromQuery(queryContext(t, ""), base)
	if changed {
		t.Fatalf("changed = true, want false")
	}
	if len(problems) != 0 {
		t.Fatalf("problems = %v, want none", problems)
	}
	if got != base {
		t.Fatalf("options = %+v, want unchanged %+v", got, base)
	}
}

func TestMergeOptionsFromQuery_Overrides(t *testing.T) {
	t.Parallel()

	base := merge.Options{LabelThreshold: 0.92, ContentThreshold: 0.90}
	got, changed, problems := mergeOptionsFromQuery(
		queryContext(t, "label_threshold=0.8&content_threshold=0.85&use_content_embedding=true&require_both=true&use_suggester=false"),
		base,
	)
	if len(problems) != 0 {
		t.Fatalf("problems = %v, want none", problems)
	}
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if got.LabelThreshold != 0.8 {
		t.Fatalf("LabelThreshold = %v, want 0.8", got.LabelThreshold)
	}
	if got.ContentThreshold != 0.85 {
		t.Fatalf("ContentThreshold = %v, want 0.85", got.ContentThreshold)
	}
	if !got.UseContentEmbedding {
		t.Fatalf("UseContentEmbedding = false, want true")
	}
	if !got.RequireBoth {
		t.Fatalf("RequireBoth = false, want true")
	}
	if got.UseSuggester {
		t.Fatalf("UseSuggester = true, want false")
	}
}

func TestMergeOptionsFromQuery_Invalid(t *testing.T) {
	t.Parallel()

	base := merge.Options{LabelThreshold: 0.92}
	_, _, problems := mergeOptionsFromQuery(queryContext(t, "label_threshold=1.5&require_both=maybe"), base)
	if _, ok := problems["label_threshold"]; !ok {
		t.Fatalf("problems = %v, want label_threshold entry", problems)
	}
	if _, ok := problems["require_both"]; !ok {
		t.Fatalf("problems = %v, want require_both entry", problems)
	}
}
