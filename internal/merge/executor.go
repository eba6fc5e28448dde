package merge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Tx is the set of write operations a merge performs. All of them run
// inside one database transaction owned by TxStore.WithTx.
type Tx interface {
	// ThemeForMerge loads the label and stored embedding of a theme, or
	// ErrThemeNotFound.
	ThemeForMerge(ctx context.Context, id int64) (canonicalLabel string, embedding []float64, err error)

	// MoveNarratives repoints all narratives from source to target and
	// returns how many rows moved.
	MoveNarratives(ctx context.Context, sourceID, targetID int64) (int, error)

	// MoveAliases copies source aliases the target does not already have,
	// then deletes all source alias rows.
	MoveAliases(ctx context.Context, sourceID, targetID int64) error

	// MergeDailyCounts folds every date-keyed statistic row of source into
	// target by summing counts per date, then deletes the source rows.
	MergeDailyCounts(ctx context.Context, sourceID, targetID int64) error

	AppendReinforcement(ctx context.Context, targetID int64, sourceLabel string, sourceEmbedding []float64) error

	DeleteTheme(ctx context.Context, id int64) error
}

// TxStore runs fn inside a transaction, committing on nil and rolling back
// on error. *db.Pool satisfies it.
type TxStore interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Executor folds one theme into another as a single atomic unit. A partial
// merge must never be observable.
type Executor struct {
	store TxStore
	log   zerolog.Logger
}

func NewExecutor(store TxStore, log zerolog.Logger) *Executor {
	return &Executor{store: store, log: log}
}

// Merge moves everything attached to sourceID onto targetID, records a
// reinforcement for the retired label, and deletes the source theme. It
// returns the number of narratives moved. Merging a theme into itself is a
// no-op.
func (e *Executor) Merge(ctx context.Context, sourceID, targetID int64) (int, error) {
	if sourceID == targetID {
		return 0, nil
	}

	var moved int
	err := e.store.WithTx(ctx, func(tx Tx) error {
		sourceLabel, sourceEmbedding, err := tx.ThemeForMerge(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("load source theme %d: %w", sourceID, err)
		}
		if _, _, err := tx.ThemeForMerge(ctx, targetID); err != nil {
			return fmt.Errorf("load target theme %d: %w", targetID, err)
		}

		moved, err = tx.MoveNarratives(ctx, sourceID, targetID)
		if err != nil {
			return fmt.Errorf("move narratives: %w", err)
		}
		if err := tx.MoveAliases(ctx, sourceID, targetID); err != nil {
			return fmt.Errorf("move aliases: %w", err)
		}
		if err := tx.MergeDailyCounts(ctx, sourceID, targetID); err != nil {
			return fmt.Errorf("merge daily counts: %w", err)
		}
		if err := tx.AppendReinforcement(ctx, targetID, sourceLabel, sourceEmbedding); err != nil {
			return fmt.Errorf("append reinforcement: %w", err)
		}
		if err := tx.DeleteTheme(ctx, sourceID); err != nil {
			return fmt.Errorf("delete source theme: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info().
		Int64("source_theme_id", sourceID).
		Int64("target_theme_id", targetID).
		Int("narratives_moved", moved).
		Msg("themes merged")
	return moved, nil
}
