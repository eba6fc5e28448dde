// Package worker runs the ingest pipeline: it claims queued jobs, downloads
// each document, extracts themes and narratives, resolves labels onto theme
// rows, and persists narratives, evidence, and daily counts.
package worker

import (
	"context"
	"time"

	"github.com/AmberYZ/investing-agent/internal/llm"
	"github.com/AmberYZ/investing-agent/internal/theme"
)

// Job is one claimed ingest job.
type Job struct {
	ID         int64
	DocumentID int64
}

// Document is the worker's view of a document row.
type Document struct {
	ID         int64
	Filename   string
	StorageURI string
}

// NarrativeAttrs are the extractor-derived attributes stored with a
// statement.
type NarrativeAttrs struct {
	SubTheme   string
	Stance     string
	Confidence string
}

// Store is the persistence surface the pipeline needs. *db.Pool satisfies
// it. Each worker goroutine issues its own statements; there is no shared
// in-process theme state.
type Store interface {
	// ClaimQueuedJobs flips up to limit queued jobs to processing in one
	// batch commit and returns them.
	ClaimQueuedJobs(ctx context.Context, limit int) ([]Job, error)

	MarkJobDone(ctx context.Context, jobID int64) error
	MarkJobError(ctx context.Context, jobID int64, message string) error

	DocumentByID(ctx context.Context, id int64) (*Document, error)
	SetDocumentLanguage(ctx context.Context, documentID int64, language string) error

	// UpsertNarrative creates the narrative if the theme has no narrative
	// with this statement yet, otherwise refreshes last-seen and the derived
	// attributes. Returns the narrative id.
	UpsertNarrative(ctx context.Context, themeID int64, statement string, attrs NarrativeAttrs, seenAt time.Time) (int64, error)

	InsertEvidence(ctx context.Context, narrativeID, documentID int64, quote string, page *int) error

	AddDailyMentions(ctx context.Context, themeID int64, day time.Time, mentions int) error
	AddDailyRelation(ctx context.Context, themeID, otherThemeID int64, day time.Time) error
	AddDailySubThemeMention(ctx context.Context, themeID int64, subTheme string, day time.Time) error
}

// Resolver maps one raw label to a theme. *theme.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, rawLabel string) (*theme.Resolution, error)
}

// Extractor turns document text into structured themes and narratives.
// *llm.Extractor and *llm.HeuristicExtractor both satisfy it.
type Extractor interface {
	Extract(ctx context.Context, text string) (*llm.ExtractedDocument, error)
}
