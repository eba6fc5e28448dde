package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memTheme struct {
	label     string
	embedding []float64
}

// memTx is an in-memory Tx whose mutations apply to a scratch copy that the
// store only keeps when the transaction function returns nil.
type memStore struct {
	themes         map[int64]*memTheme
	narratives     map[int64]int64          // narrative id -> theme id
	aliases        map[int64]map[string]bool // theme id -> alias set
	daily          map[int64]map[string]int  // theme id -> date -> count
	reinforcements []struct {
		themeID int64
		label   string
	}
}

func newMemStore() *memStore {
	return &memStore{
		themes:     map[int64]*memTheme{},
		narratives: map[int64]int64{},
		aliases:    map[int64]map[string]bool{},
		daily:      map[int64]map[string]int{},
	}
}

func (s *memStore) clone() *memStore {
	out := newMemStore()
	for id, t := range s.themes {
		copied := *t
		out.themes[id] = &copied
	}
	for id, themeID := range s.narratives {
		out.narratives[id] = themeID
	}
	for themeID, aliases := range s.aliases {
		out.aliases[themeID] = map[string]bool{}
		for alias := range aliases {
			out.aliases[themeID][alias] = true
		}
	}
	for themeID, days := range s.daily {
		out.daily[themeID] = map[string]int{}
		for day, count := range days {
			out.daily[themeID][day] = count
		}
	}
	out.reinforcements = append(out.reinforcements, s.reinforcements...)
	return out
}

func (s *memStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	scratch := s.clone()
	if err := fn(&memTx{store: scratch}); err != nil {
		return err
	}
	*s = *scratch
	return nil
}

type memTx struct {
	store *memStore

	failOn string
}

func (t *memTx) ThemeForMerge(_ context.Context, id int64) (string, []float64, error) {
	found, ok := t.store.themes[id]
	if !ok {
		return "", nil, ErrThemeNotFound
	}
	return found.label, found.embedding, nil
}

func (t *memTx) MoveNarratives(_ context.Context, sourceID, targetID int64) (int, error) {
	moved := 0
	for id, themeID := range t.store.narratives {
		if themeID == sourceID {
			t.store.narratives[id] = targetID
			moved++
		}
	}
	return moved, nil
}

func (t *memTx) MoveAliases(_ context.Context, sourceID, targetID int64) error {
	if t.store.aliases[targetID] == nil {
		t.store.aliases[targetID] = map[string]bool{}
	}
	for alias := range t.store.aliases[sourceID] {
		t.store.aliases[targetID][alias] = true
	}
	delete(t.store.aliases, sourceID)
	return nil
}

func (t *memTx) MergeDailyCounts(_ context.Context, sourceID, targetID int64) error {
	if t.failOn == "daily" {
		return errors.New("daily merge blew up")
	}
	if t.store.daily[targetID] == nil {
		t.store.daily[targetID] = map[string]int{}
	}
	for day, count := range t.store.daily[sourceID] {
		t.store.daily[targetID][day] += count
	}
	delete(t.store.daily, sourceID)
	return nil
}

func (t *memTx) AppendReinforcement(_ context.Context, targetID int64, sourceLabel string, _ []float64) error {
	t.store.reinforcements = append(t.store.reinforcements, struct {
		themeID int64
		label   string
	}{themeID: targetID, label: sourceLabel})
	return nil
}

func (t *memTx) DeleteTheme(_ context.Context, id int64) error {
	delete(t.store.themes, id)
	return nil
}

// failingStore wraps memStore but injects a failure mid-transaction.
type failingStore struct {
	*memStore
}

func (s *failingStore) WithTx(_ context.Context, fn func(tx Tx) error) error {
	scratch := s.memStore.clone()
	if err := fn(&memTx{store: scratch, failOn: "daily"}); err != nil {
		return err
	}
	*s.memStore = *scratch
	return nil
}

func seedMergeFixture() *memStore {
	store := newMemStore()
	store.themes[1] = &memTheme{label: "byd"}
	store.themes[2] = &memTheme{label: "byd ev sales", embedding: []float64{1, 0}}
	store.narratives[10] = 1
	store.narratives[11] = 2
	store.narratives[12] = 2
	store.aliases[1] = map[string]bool{"byd inc": true}
	store.aliases[2] = map[string]bool{"byd inc": true, "byd ev": true}
	day := time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	store.daily[1] = map[string]int{day: 3}
	store.daily[2] = map[string]int{day: 2, "2026-08-15": 1}
	return store
}

func TestExecutor_MergeMovesEverything(t *testing.T) {
	t.Parallel()

	store := seedMergeFixture()
	executor := NewExecutor(store, zerolog.Nop())

	moved, err := executor.Merge(context.Background(), 2, 1)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if moved != 2 {
		t.Fatalf("narratives moved: got %d want 2", moved)
	}

	if _, exists := store.themes[2]; exists {
		t.Fatalf("source theme must be deleted")
	}
	for id, themeID := range store.narratives {
		if themeID != 1 {
			t.Fatalf("narrative %d still points at theme %d", id, themeID)
		}
	}
	if !store.aliases[1]["byd ev"] || !store.aliases[1]["byd inc"] {
		t.Fatalf("aliases not folded into target: %v", store.aliases[1])
	}
	if _, exists := store.aliases[2]; exists {
		t.Fatalf("source aliases must be deleted")
	}
	if got := store.daily[1]["2026-08-14"]; got != 5 {
		t.Fatalf("shared-date daily count: got %d want 5", got)
	}
	if got := store.daily[1]["2026-08-15"]; got != 1 {
		t.Fatalf("source-only daily row must move unchanged, got %d", got)
	}
	if len(store.reinforcements) != 1 ||
		store.reinforcements[0].themeID != 1 ||
		store.reinforcements[0].label != "byd ev sales" {
		t.Fatalf("unexpected reinforcement records: %+v", store.reinforcements)
	}
}

func TestExecutor_MissingThemeFails(t *testing.T) {
	t.Parallel()

	store := seedMergeFixture()
	executor := NewExecutor(store, zerolog.Nop())

	if _, err := executor.Merge(context.Background(), 99, 1); !errors.Is(err, ErrThemeNotFound) {
		t.Fatalf("missing source: got %v, want ErrThemeNotFound", err)
	}
	if _, err := executor.Merge(context.Background(), 2, 99); !errors.Is(err, ErrThemeNotFound) {
		t.Fatalf("missing target: got %v, want ErrThemeNotFound", err)
	}
}

func TestExecutor_SelfMergeIsNoOp(t *testing.T) {
	t.Parallel()

	store := seedMergeFixture()
	executor := NewExecutor(store, zerolog.Nop())

	moved, err := executor.Merge(context.Background(), 1, 1)
	if err != nil || moved != 0 {
		t.Fatalf("self merge: got moved=%d err=%v, want 0 and nil", moved, err)
	}
}

func TestExecutor_FailureRollsBackEverything(t *testing.T) {
	t.Parallel()

	store := seedMergeFixture()
	executor := NewExecutor(&failingStore{memStore: store}, zerolog.Nop())

	if _, err := executor.Merge(context.Background(), 2, 1); err == nil {
		t.Fatalf("expected merge to fail")
	}

	if _, exists := store.themes[2]; !exists {
		t.Fatalf("failed merge must leave the source theme in place")
	}
	if store.narratives[11] != 2 || store.narratives[12] != 2 {
		t.Fatalf("failed merge must not move narratives: %v", store.narratives)
	}
	if len(store.reinforcements) != 0 {
		t.Fatalf("failed merge must not record reinforcements: %+v", store.reinforcements)
	}
}
