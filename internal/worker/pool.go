package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/AmberYZ/investing-agent/internal/globaltime"
	"github.com/AmberYZ/investing-agent/internal/langdetect"
	"github.com/AmberYZ/investing-agent/internal/metrics"
	"github.com/AmberYZ/investing-agent/internal/storage"
	"github.com/AmberYZ/investing-agent/internal/theme"
)

// Config sizes the pool. MaxWorkers bounds concurrently processing jobs;
// LLMConcurrency separately bounds in-flight provider calls, since the
// download and persist phases can run wider than the network-bound
// extraction phase.
type Config struct {
	MaxWorkers     int
	PollInterval   time.Duration
	LLMConcurrency int64
}

func (c *Config) applyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.LLMConcurrency <= 0 {
		c.LLMConcurrency = 3
	}
}

type jobResult struct {
	jobID int64
	err   error
}

// Pool claims queued ingest jobs and processes them on a fixed number of
// goroutines. Job failures are recorded on the job row and never stop the
// scheduling loop.
type Pool struct {
	store     Store
	blobs     storage.Store
	extractor Extractor
	resolver  Resolver
	cfg       Config
	log       zerolog.Logger

	llmSem  *semaphore.Weighted
	results chan jobResult

	inFlight int

	detectLanguage func(string) string
}

func NewPool(store Store, blobs storage.Store, extractor Extractor, resolver Resolver, cfg Config, log zerolog.Logger) *Pool {
	cfg.applyDefaults()
	return &Pool{
		store:          store,
		blobs:          blobs,
		extractor:      extractor,
		resolver:       resolver,
		cfg:            cfg,
		log:            log,
		llmSem:         semaphore.NewWeighted(cfg.LLMConcurrency),
		results:        make(chan jobResult, cfg.MaxWorkers),
		detectLanguage: langdetect.DetectISO6391,
	}
}

// Run polls for queued jobs until ctx is canceled.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info().
		Int("max_workers", p.cfg.MaxWorkers).
		Int64("llm_concurrency", p.cfg.LLMConcurrency).
		Dur("poll_interval", p.cfg.PollInterval).
		Msg("ingest worker pool started")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs one scheduling round: reap finished jobs, then claim and start
// as many queued jobs as free capacity allows.
func (p *Pool) tick(ctx context.Context) {
	p.reap()

	capacity := p.cfg.MaxWorkers - p.inFlight
	if capacity <= 0 {
		return
	}

	jobs, err := p.store.ClaimQueuedJobs(ctx, capacity)
	if err != nil {
		p.log.Error().Err(err).Msg("claiming queued jobs failed")
		return
	}

	for _, job := range jobs {
		p.inFlight++
		go p.runJob(ctx, job)
	}
}

// reap collects results of completed jobs without blocking. Job errors were
// already written to the job row; here they are only logged.
func (p *Pool) reap() {
	for {
		select {
		case result := <-p.results:
			p.inFlight--
			if result.err != nil {
				p.log.Warn().Err(result.err).Int64("job_id", result.jobID).Msg("ingest job failed")
			}
		default:
			return
		}
	}
}

// drain waits for in-flight jobs after the loop stops.
func (p *Pool) drain() {
	for p.inFlight > 0 {
		result := <-p.results
		p.inFlight--
		if result.err != nil {
			p.log.Warn().Err(result.err).Int64("job_id", result.jobID).Msg("ingest job failed")
		}
	}
}

func (p *Pool) runJob(ctx context.Context, job Job) {
	start := time.Now()
	err := p.processJob(ctx, job)
	metrics.IngestJobDuration.Observe(time.Since(start).Seconds())

	// The status write must land even when the pool context is already
	// canceled, or the claimed job stays stranded in processing.
	statusCtx := context.WithoutCancel(ctx)
	if err != nil {
		metrics.IngestJobsTotal.WithLabelValues("error").Inc()
		if markErr := p.store.MarkJobError(statusCtx, job.ID, err.Error()); markErr != nil {
			p.log.Error().Err(markErr).Int64("job_id", job.ID).Msg("recording job error failed")
		}
	} else {
		metrics.IngestJobsTotal.WithLabelValues("done").Inc()
		if markErr := p.store.MarkJobDone(statusCtx, job.ID); markErr != nil {
			p.log.Error().Err(markErr).Int64("job_id", job.ID).Msg("recording job completion failed")
			err = markErr
		}
	}
	p.results <- jobResult{jobID: job.ID, err: err}
}

// processJob runs the pipeline for one claimed job. All narrative and
// evidence writes land before the job can be marked done.
func (p *Pool) processJob(ctx context.Context, job Job) error {
	doc, err := p.store.DocumentByID(ctx, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document %d: %w", job.DocumentID, err)
	}

	data, err := p.blobs.Get(ctx, doc.StorageURI)
	if err != nil {
		return fmt.Errorf("download document: %w", err)
	}
	text := string(data)

	if language := p.detectLanguage(text); language != "" {
		if err := p.store.SetDocumentLanguage(ctx, doc.ID, language); err != nil {
			p.log.Warn().Err(err).Int64("document_id", doc.ID).Msg("storing document language failed")
		}
	}

	if err := p.llmSem.Acquire(ctx, 1); err != nil {
		return err
	}
	extracted, err := p.extractor.Extract(ctx, text)
	p.llmSem.Release(1)
	if err != nil {
		return fmt.Errorf("extract themes: %w", err)
	}

	now := globaltime.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	resolvedByCanonical := map[string]*theme.Theme{}
	seenThemeIDs := map[int64]struct{}{}
	var resolvedOrder []int64

	for _, extractedTheme := range extracted.Themes {
		canonical := theme.Canonicalize(extractedTheme.Label)
		if canonical == "" {
			continue
		}

		resolved, ok := resolvedByCanonical[canonical]
		if !ok {
			if err := p.llmSem.Acquire(ctx, 1); err != nil {
				return err
			}
			resolution, err := p.resolver.Resolve(ctx, extractedTheme.Label)
			p.llmSem.Release(1)
			if err != nil {
				return fmt.Errorf("resolve theme %q: %w", extractedTheme.Label, err)
			}
			metrics.ThemesResolvedTotal.WithLabelValues(resolution.Stage).Inc()
			resolved = resolution.Theme
			resolvedByCanonical[canonical] = resolved
			// Distinct canonicals can still land on one theme through the
			// alias and similarity stages; track theme ids, not labels.
			if _, dup := seenThemeIDs[resolved.ID]; !dup {
				seenThemeIDs[resolved.ID] = struct{}{}
				resolvedOrder = append(resolvedOrder, resolved.ID)
			}
		}

		mentions := 0
		for _, narrative := range extractedTheme.Narratives {
			statement := narrative.Statement
			if statement == "" {
				continue
			}
			attrs := NarrativeAttrs{
				SubTheme:   narrative.SubTheme,
				Stance:     narrative.Stance,
				Confidence: narrative.Confidence,
			}
			narrativeID, err := p.store.UpsertNarrative(ctx, resolved.ID, statement, attrs, now)
			if err != nil {
				return fmt.Errorf("upsert narrative: %w", err)
			}
			mentions++

			evidence := narrative.Evidence
			if len(evidence) > 3 {
				evidence = evidence[:3]
			}
			for _, item := range evidence {
				if item.Quote == "" {
					continue
				}
				if err := p.store.InsertEvidence(ctx, narrativeID, doc.ID, item.Quote, item.Page); err != nil {
					return fmt.Errorf("insert evidence: %w", err)
				}
			}

			if narrative.SubTheme != "" {
				if err := p.store.AddDailySubThemeMention(ctx, resolved.ID, narrative.SubTheme, day); err != nil {
					return fmt.Errorf("bump sub-theme mentions: %w", err)
				}
			}
		}

		if mentions > 0 {
			if err := p.store.AddDailyMentions(ctx, resolved.ID, day, mentions); err != nil {
				return fmt.Errorf("bump theme mentions: %w", err)
			}
		}
	}

	// Every distinct pair of themes in one document co-mentions once.
	for i := 0; i < len(resolvedOrder); i++ {
		for j := i + 1; j < len(resolvedOrder); j++ {
			if err := p.store.AddDailyRelation(ctx, resolvedOrder[i], resolvedOrder[j], day); err != nil {
				return fmt.Errorf("bump theme relation: %w", err)
			}
		}
	}
	return nil
}
