package db

import (
	"context"
	"fmt"
	"time"

	"github.com/AmberYZ/investing-agent/internal/worker"
)

// IngestJobInfo is the read model for job listings in the API and CLI.
type IngestJobInfo struct {
	JobID      int64      `json:"job_id"`
	DocumentID int64      `json:"document_id"`
	Filename   string     `json:"filename"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ListIngestJobs returns the newest jobs first, optionally filtered by status.
func (p *Pool) ListIngestJobs(ctx context.Context, status string, limit int) ([]IngestJobInfo, error) {
	rows, err := p.Query(ctx, `
		SELECT j.job_id, j.document_id, d.filename, j.status, j.error_message,
		       j.enqueued_at, j.started_at, j.finished_at
		FROM ia.ingest_jobs j
		JOIN ia.documents d ON d.document_id = j.document_id
		WHERE ($1 = '' OR j.status = $1)
		ORDER BY j.enqueued_at DESC, j.job_id DESC
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest jobs: %w", err)
	}
	defer rows.Close()

	out := make([]IngestJobInfo, 0, limit)
	for rows.Next() {
		var job IngestJobInfo
		if err := rows.Scan(&job.JobID, &job.DocumentID, &job.Filename, &job.Status,
			&job.Error, &job.EnqueuedAt, &job.StartedAt, &job.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan ingest job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest jobs: %w", err)
	}
	return out, nil
}

// RequeueErroredJobs flips errored jobs back to queued and returns how many
// were affected.
func (p *Pool) RequeueErroredJobs(ctx context.Context) (int64, error) {
	tag, err := p.Exec(ctx, `
		UPDATE ia.ingest_jobs
		SET status = 'queued', error_message = NULL, started_at = NULL,
		    finished_at = NULL, updated_at = now()
		WHERE status = 'error'`)
	if err != nil {
		return 0, fmt.Errorf("requeue errored jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

const maxSubThemeLabelChars = 128

// CreateDocumentWithJob inserts the document row and its ingest job in one
// transaction so a document never exists without a job.
func (p *Pool) CreateDocumentWithJob(ctx context.Context, filename, storageURI string, sizeBytes int64) (int64, int64, error) {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, 0, fmt.Errorf("begin ingest transaction: %w", err)
	}

	var documentID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO ia.documents (filename, storage_key, size_bytes)
		VALUES ($1, $2, $3)
		RETURNING document_id`, filename, storageURI, sizeBytes).Scan(&documentID); err != nil {
		_ = tx.Rollback(ctx)
		return 0, 0, fmt.Errorf("insert document: %w", err)
	}

	var jobID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO ia.ingest_jobs (document_id)
		VALUES ($1)
		RETURNING job_id`, documentID).Scan(&jobID); err != nil {
		_ = tx.Rollback(ctx)
		return 0, 0, fmt.Errorf("insert ingest job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit ingest transaction: %w", err)
	}
	return documentID, jobID, nil
}

// ClaimQueuedJobs implements worker.Store. One UPDATE claims the batch, so
// concurrent schedulers never hand the same job to two workers.
func (p *Pool) ClaimQueuedJobs(ctx context.Context, limit int) ([]worker.Job, error) {
	rows, err := p.Query(ctx, `
		UPDATE ia.ingest_jobs
		SET status = 'processing', started_at = now(), updated_at = now()
		WHERE job_id IN (
			SELECT job_id
			FROM ia.ingest_jobs
			WHERE status = 'queued'
			ORDER BY enqueued_at, job_id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_id, document_id`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued jobs: %w", err)
	}
	defer rows.Close()

	var out []worker.Job
	for rows.Next() {
		var job worker.Job
		if err := rows.Scan(&job.ID, &job.DocumentID); err != nil {
			return nil, fmt.Errorf("scan claimed job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed jobs: %w", err)
	}
	return out, nil
}

// MarkJobDone implements worker.Store.
func (p *Pool) MarkJobDone(ctx context.Context, jobID int64) error {
	_, err := p.Exec(ctx, `
		UPDATE ia.ingest_jobs
		SET status = 'done', error_message = NULL, finished_at = now(), updated_at = now()
		WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkJobError implements worker.Store.
func (p *Pool) MarkJobError(ctx context.Context, jobID int64, message string) error {
	_, err := p.Exec(ctx, `
		UPDATE ia.ingest_jobs
		SET status = 'error', error_message = $2, finished_at = now(), updated_at = now()
		WHERE job_id = $1`, jobID, message)
	if err != nil {
		return fmt.Errorf("mark job error: %w", err)
	}
	return nil
}

// DocumentByID implements worker.Store. The storage_key column holds the
// blob store URI returned at upload time.
func (p *Pool) DocumentByID(ctx context.Context, id int64) (*worker.Document, error) {
	var doc worker.Document
	err := p.QueryRow(ctx, `
		SELECT document_id, filename, storage_key
		FROM ia.documents
		WHERE document_id = $1`, id).Scan(&doc.ID, &doc.Filename, &doc.StorageURI)
	if IsNoRows(err) {
		return nil, fmt.Errorf("document %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return &doc, nil
}

// SetDocumentLanguage implements worker.Store.
func (p *Pool) SetDocumentLanguage(ctx context.Context, documentID int64, language string) error {
	_, err := p.Exec(ctx, `
		UPDATE ia.documents
		SET language = $2
		WHERE document_id = $1`, documentID, language)
	if err != nil {
		return fmt.Errorf("set document language: %w", err)
	}
	return nil
}

// UpsertNarrative implements worker.Store. Statements are unique per theme;
// a repeat sighting refreshes last_seen_at and fills in any attribute the
// earlier sighting left empty.
func (p *Pool) UpsertNarrative(ctx context.Context, themeID int64, statement string, attrs worker.NarrativeAttrs, seenAt time.Time) (int64, error) {
	var id int64
	err := p.QueryRow(ctx, `
		INSERT INTO ia.narratives (theme_id, statement, sub_theme, narrative_stance, confidence_level, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (theme_id, statement)
		DO UPDATE SET last_seen_at = GREATEST(ia.narratives.last_seen_at, EXCLUDED.last_seen_at),
		              sub_theme = COALESCE(NULLIF(EXCLUDED.sub_theme, ''), ia.narratives.sub_theme),
		              narrative_stance = COALESCE(NULLIF(EXCLUDED.narrative_stance, ''), ia.narratives.narrative_stance),
		              confidence_level = COALESCE(NULLIF(EXCLUDED.confidence_level, ''), ia.narratives.confidence_level),
		              updated_at = now()
		RETURNING narrative_id`,
		themeID, statement, attrs.SubTheme, attrs.Stance, attrs.Confidence, seenAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert narrative: %w", err)
	}
	return id, nil
}

// InsertEvidence implements worker.Store. The page number is recorded in the
// quote when present; the table keys evidence to its narrative and document.
func (p *Pool) InsertEvidence(ctx context.Context, narrativeID, documentID int64, quote string, page *int) error {
	if page != nil {
		quote = fmt.Sprintf("%s (p. %d)", quote, *page)
	}
	_, err := p.Exec(ctx, `
		INSERT INTO ia.evidence (narrative_id, document_id, quote)
		VALUES ($1, $2, $3)`, narrativeID, documentID, quote)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// AddDailyMentions implements worker.Store.
func (p *Pool) AddDailyMentions(ctx context.Context, themeID int64, day time.Time, mentions int) error {
	_, err := p.Exec(ctx, `
		INSERT INTO ia.theme_mentions_daily (theme_id, day, mention_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (theme_id, day)
		DO UPDATE SET mention_count = ia.theme_mentions_daily.mention_count + EXCLUDED.mention_count`,
		themeID, day, mentions)
	if err != nil {
		return fmt.Errorf("bump daily mentions: %w", err)
	}
	return nil
}

// AddDailyRelation implements worker.Store. The pair is normalized so each
// unordered theme pair has one row per day.
func (p *Pool) AddDailyRelation(ctx context.Context, themeID, otherThemeID int64, day time.Time) error {
	_, err := p.Exec(ctx, `
		INSERT INTO ia.theme_relation_daily (theme_id, other_theme_id, day, co_mention_count)
		VALUES (LEAST($1, $2), GREATEST($1, $2), $3, 1)
		ON CONFLICT (theme_id, other_theme_id, day)
		DO UPDATE SET co_mention_count = ia.theme_relation_daily.co_mention_count + 1`,
		themeID, otherThemeID, day)
	if err != nil {
		return fmt.Errorf("bump daily relation: %w", err)
	}
	return nil
}

// AddDailySubThemeMention implements worker.Store.
func (p *Pool) AddDailySubThemeMention(ctx context.Context, themeID int64, subTheme string, day time.Time) error {
	if len(subTheme) > maxSubThemeLabelChars {
		subTheme = subTheme[:maxSubThemeLabelChars]
	}
	_, err := p.Exec(ctx, `
		INSERT INTO ia.theme_sub_theme_mentions_daily (theme_id, sub_theme_label, day, mention_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (theme_id, sub_theme_label, day)
		DO UPDATE SET mention_count = ia.theme_sub_theme_mentions_daily.mention_count + 1`,
		themeID, subTheme, day)
	if err != nil {
		return fmt.Errorf("bump sub-theme mentions: %w", err)
	}
	return nil
}
