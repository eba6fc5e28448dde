package merge

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	themes     []Theme
	statements map[int64][]string
	quotes     map[int64][]string
}

func (s *fakeStore) ListThemesWithCounts(_ context.Context) ([]Theme, error) {
	return s.themes, nil
}

func (s *fakeStore) ThemeContent(_ context.Context, themeID int64, maxStatements, maxQuotes int) ([]string, []string, error) {
	statements := s.statements[themeID]
	if len(statements) > maxStatements {
		statements = statements[:maxStatements]
	}
	quotes := s.quotes[themeID]
	if len(quotes) > maxQuotes {
		quotes = quotes[:maxQuotes]
	}
	return statements, quotes, nil
}

type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.vectors[text]
	}
	return out, nil
}

type fakeSuggester struct {
	groups [][]string
	err    error
}

func (s *fakeSuggester) SuggestGroups(_ context.Context, _ []string) ([][]string, error) {
	return s.groups, s.err
}

func TestUnionFind_Clustering(t *testing.T) {
	t.Parallel()

	uf := newUnionFind()
	for _, p := range [][2]int64{{1, 2}, {2, 3}, {4, 5}} {
		uf.union(p[0], p[1])
	}

	components := uf.components()
	if len(components) != 2 {
		t.Fatalf("got %d components, want 2: %v", len(components), components)
	}
	sizes := map[int]int{}
	for _, c := range components {
		sizes[len(c)]++
	}
	if sizes[3] != 1 || sizes[2] != 1 {
		t.Fatalf("unexpected component sizes: %v", components)
	}
}

func TestEntityConflict_DifferentRegionsAlwaysDropped(t *testing.T) {
	t.Parallel()

	if !labelsConflictEntities("china consumer", "us consumer") {
		t.Fatalf("china vs us labels must conflict")
	}
	if labelsConflictEntities("china consumer", "china internet") {
		t.Fatalf("same-region labels must not conflict")
	}
	if labelsConflictEntities("gold miners", "copper miners") {
		t.Fatalf("labels without entity tokens must not conflict")
	}
}

func TestFinder_LabelEmbeddingPairs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{themes: []Theme{
		{ID: 1, CanonicalLabel: "byd", Embedding: []float64{1, 0}},
		{ID: 2, CanonicalLabel: "byd ev sales", Embedding: []float64{0.99, 0.05}},
		{ID: 3, CanonicalLabel: "uranium", Embedding: []float64{0, 1}},
		{ID: 4, CanonicalLabel: "no embedding yet"},
	}}
	f := NewFinder(store, nil, nil, Options{UseLabelEmbedding: true, LabelThreshold: 0.92}, zerolog.Nop())

	sets, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("find merge sets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d merge sets, want 1: %+v", len(sets), sets)
	}
	if got := sets[0].ThemeIDs; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected merge set members: %v", got)
	}
	if sets[0].CanonicalID != 1 {
		t.Fatalf("canonical id: got %d want 1 (shorter label)", sets[0].CanonicalID)
	}
}

func TestFinder_EntityConflictFilterBeatsSimilarity(t *testing.T) {
	t.Parallel()

	store := &fakeStore{themes: []Theme{
		{ID: 1, CanonicalLabel: "china consumer", Embedding: []float64{1, 0}},
		{ID: 2, CanonicalLabel: "us consumer", Embedding: []float64{1, 0}},
	}}
	f := NewFinder(store, nil, nil, Options{UseLabelEmbedding: true}, zerolog.Nop())

	sets, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("find merge sets: %v", err)
	}
	if len(sets) != 0 {
		t.Fatalf("identical embeddings across regions must not merge: %+v", sets)
	}
}

func TestFinder_RequireBothIntersectsPasses(t *testing.T) {
	t.Parallel()

	themes := []Theme{
		{ID: 1, CanonicalLabel: "ai capex", Embedding: []float64{1, 0}},
		{ID: 2, CanonicalLabel: "ai infrastructure spend", Embedding: []float64{0.99, 0.05}},
		{ID: 3, CanonicalLabel: "datacenter buildout", Embedding: []float64{0.98, 0.1}},
	}
	store := &fakeStore{
		themes:     themes,
		statements: map[int64][]string{1: {"hyperscalers raising capex"}, 2: {"hyperscalers raising capex"}},
	}
	// Content vectors only agree for themes 1 and 2.
	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"Theme: ai capex\nNarratives:\nhyperscalers raising capex\nQuotes:":               {1, 0},
		"Theme: ai infrastructure spend\nNarratives:\nhyperscalers raising capex\nQuotes:": {1, 0},
		"Theme: datacenter buildout\nNarratives:\nQuotes:":                                 {0, 1},
	}}
	f := NewFinder(store, embedder, nil, Options{
		UseLabelEmbedding:   true,
		UseContentEmbedding: true,
		RequireBoth:         true,
	}, zerolog.Nop())

	sets, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("find merge sets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d merge sets, want 1: %+v", len(sets), sets)
	}
	got := sets[0].ThemeIDs
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("requireBoth should keep only the agreeing pair, got %v", got)
	}
}

func TestFinder_SuggesterErrorsAreNonFatal(t *testing.T) {
	t.Parallel()

	store := &fakeStore{themes: []Theme{
		{ID: 1, CanonicalLabel: "byd", Embedding: []float64{1, 0}},
		{ID: 2, CanonicalLabel: "byd ev sales", Embedding: []float64{0.99, 0.05}},
	}}
	f := NewFinder(store, nil, &fakeSuggester{err: errors.New("rate limited")}, Options{
		UseLabelEmbedding: true,
		UseSuggester:      true,
	}, zerolog.Nop())

	sets, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("suggester failure must not fail discovery: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("label pairs must survive a suggester failure: %+v", sets)
	}
}

func TestFinder_SuggesterGroupsAddPairs(t *testing.T) {
	t.Parallel()

	store := &fakeStore{themes: []Theme{
		{ID: 1, CanonicalLabel: "nuclear renaissance"},
		{ID: 2, CanonicalLabel: "uranium demand"},
		{ID: 3, CanonicalLabel: "gold"},
	}}
	suggester := &fakeSuggester{groups: [][]string{
		{"Nuclear Renaissance", "uranium demand"},
		{"gold"},
		{"unknown label", "another unknown"},
	}}
	f := NewFinder(store, nil, suggester, Options{UseSuggester: true}, zerolog.Nop())

	sets, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("find merge sets: %v", err)
	}
	if len(sets) != 1 {
		t.Fatalf("got %d merge sets, want 1: %+v", len(sets), sets)
	}
	got := sets[0].ThemeIDs
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected members from suggester group: %v", got)
	}
}

func TestPickCanonical(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		themes []Theme
		want   int64
	}{
		{
			name: "strict substring prefers shorter",
			themes: []Theme{
				{ID: 7, CanonicalLabel: "china internet platforms"},
				{ID: 9, CanonicalLabel: "china internet"},
			},
			want: 9,
		},
		{
			name: "fewer tokens wins",
			themes: []Theme{
				{ID: 1, CanonicalLabel: "global defense spending supercycle"},
				{ID: 2, CanonicalLabel: "defense budgets"},
			},
			want: 2,
		},
		{
			name: "activity breaks token tie",
			themes: []Theme{
				{ID: 1, CanonicalLabel: "copper squeeze", NarrativeCount: 2, EvidenceCount: 4},
				{ID: 2, CanonicalLabel: "copper deficit", NarrativeCount: 5, EvidenceCount: 1},
			},
			want: 2,
		},
		{
			name: "oldest id as final tie-break",
			themes: []Theme{
				{ID: 12, CanonicalLabel: "lng exports"},
				{ID: 4, CanonicalLabel: "gas terminals"},
			},
			want: 4,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := pickCanonical(tc.themes); got != tc.want {
				t.Fatalf("pickCanonical: got %d want %d", got, tc.want)
			}

			// Order of members must not change the outcome.
			reversed := make([]Theme, len(tc.themes))
			for i, theme := range tc.themes {
				reversed[len(tc.themes)-1-i] = theme
			}
			if got := pickCanonical(reversed); got != tc.want {
				t.Fatalf("pickCanonical not order-independent: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestFinder_Deterministic(t *testing.T) {
	t.Parallel()

	store := &fakeStore{themes: []Theme{
		{ID: 1, CanonicalLabel: "byd", Embedding: []float64{1, 0, 0}},
		{ID: 2, CanonicalLabel: "byd ev sales", Embedding: []float64{0.99, 0.05, 0}},
		{ID: 3, CanonicalLabel: "byd deliveries", Embedding: []float64{0.98, 0.1, 0}},
		{ID: 4, CanonicalLabel: "uranium", Embedding: []float64{0, 1, 0}},
		{ID: 5, CanonicalLabel: "uranium demand", Embedding: []float64{0, 0.99, 0.05}},
	}}
	f := NewFinder(store, nil, nil, Options{UseLabelEmbedding: true}, zerolog.Nop())

	first, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("find merge sets: %v", err)
	}
	second, err := f.FindMergeSets(context.Background())
	if err != nil {
		t.Fatalf("find merge sets again: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("re-run changed set count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].CanonicalID != second[i].CanonicalID {
			t.Fatalf("re-run changed canonical choice: %+v vs %+v", first[i], second[i])
		}
		a, b := first[i].ThemeIDs, second[i].ThemeIDs
		sort.Slice(a, func(x, y int) bool { return a[x] < a[y] })
		sort.Slice(b, func(x, y int) bool { return b[x] < b[y] })
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("re-run changed members: %v vs %v", a, b)
			}
		}
	}
}
