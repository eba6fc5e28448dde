package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AmberYZ/investing-agent/internal/llm"
	"github.com/AmberYZ/investing-agent/internal/theme"
)

type narrativeRow struct {
	themeID   int64
	statement string
	attrs     NarrativeAttrs
}

type evidenceRow struct {
	narrativeID int64
	documentID  int64
	quote       string
}

type fakeStore struct {
	mu sync.Mutex

	queued    []Job
	claimLims []int

	doneJobs   []int64
	erroredMsg map[int64]string

	documents map[int64]*Document
	languages map[int64]string

	nextNarrativeID int64
	narratives      []narrativeRow
	evidence        []evidenceRow

	mentions  map[string]int
	relations map[string]int
	subThemes map[string]int

	failDocumentLoad bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		erroredMsg: map[int64]string{},
		documents:  map[int64]*Document{},
		languages:  map[int64]string{},
		mentions:   map[string]int{},
		relations:  map[string]int{},
		subThemes:  map[string]int{},
	}
}

func (s *fakeStore) ClaimQueuedJobs(_ context.Context, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimLims = append(s.claimLims, limit)
	if limit > len(s.queued) {
		limit = len(s.queued)
	}
	claimed := s.queued[:limit]
	s.queued = s.queued[limit:]
	return claimed, nil
}

func (s *fakeStore) MarkJobDone(ctx context.Context, jobID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneJobs = append(s.doneJobs, jobID)
	return nil
}

func (s *fakeStore) MarkJobError(ctx context.Context, jobID int64, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.erroredMsg[jobID] = message
	return nil
}

func (s *fakeStore) DocumentByID(_ context.Context, id int64) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDocumentLoad {
		return nil, fmt.Errorf("document table unavailable")
	}
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d not found", id)
	}
	return doc, nil
}

func (s *fakeStore) SetDocumentLanguage(_ context.Context, documentID int64, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.languages[documentID] = language
	return nil
}

func (s *fakeStore) UpsertNarrative(_ context.Context, themeID int64, statement string, attrs NarrativeAttrs, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, row := range s.narratives {
		if row.themeID == themeID && row.statement == statement {
			return int64(i + 1), nil
		}
	}
	s.nextNarrativeID++
	s.narratives = append(s.narratives, narrativeRow{themeID: themeID, statement: statement, attrs: attrs})
	return s.nextNarrativeID, nil
}

func (s *fakeStore) InsertEvidence(_ context.Context, narrativeID, documentID int64, quote string, _ *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence = append(s.evidence, evidenceRow{narrativeID: narrativeID, documentID: documentID, quote: quote})
	return nil
}

func (s *fakeStore) AddDailyMentions(_ context.Context, themeID int64, day time.Time, mentions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mentions[fmt.Sprintf("%d/%s", themeID, day.Format("2006-01-02"))] += mentions
	return nil
}

func (s *fakeStore) AddDailyRelation(_ context.Context, themeID, otherThemeID int64, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if themeID > otherThemeID {
		themeID, otherThemeID = otherThemeID, themeID
	}
	s.relations[fmt.Sprintf("%d/%d/%s", themeID, otherThemeID, day.Format("2006-01-02"))]++
	return nil
}

func (s *fakeStore) AddDailySubThemeMention(_ context.Context, themeID int64, subTheme string, day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subThemes[fmt.Sprintf("%d/%s/%s", themeID, subTheme, day.Format("2006-01-02"))]++
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
	err     error
}

func (b *fakeBlobs) Put(_ context.Context, key string, data []byte) (string, error) {
	uri := "mem://" + key
	b.objects[uri] = data
	return uri, nil
}

func (b *fakeBlobs) Get(_ context.Context, uri string) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	data, ok := b.objects[uri]
	if !ok {
		return nil, fmt.Errorf("no object at %s", uri)
	}
	return data, nil
}

type fakeExtractor struct {
	doc *llm.ExtractedDocument
	err error
}

func (e *fakeExtractor) Extract(context.Context, string) (*llm.ExtractedDocument, error) {
	return e.doc, e.err
}

type fakeResolver struct {
	mu     sync.Mutex
	nextID int64
	byCan  map[string]*theme.Theme
	calls  int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{byCan: map[string]*theme.Theme{}}
}

func (r *fakeResolver) Resolve(_ context.Context, rawLabel string) (*theme.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	canonical := theme.Canonicalize(rawLabel)
	if existing, ok := r.byCan[canonical]; ok {
		return &theme.Resolution{Theme: existing, Stage: "exact"}, nil
	}
	r.nextID++
	created := &theme.Theme{ID: r.nextID, Label: rawLabel, CanonicalLabel: canonical}
	r.byCan[canonical] = created
	return &theme.Resolution{Theme: created, Stage: "created", Created: true}, nil
}

func newTestPool(store *fakeStore, blobs *fakeBlobs, extractor Extractor, resolver Resolver) *Pool {
	pool := NewPool(store, blobs, extractor, resolver, Config{MaxWorkers: 4}, zerolog.Nop())
	pool.detectLanguage = func(string) string { return "en" }
	return pool
}

func TestPool_ProcessJobPersistsExtraction(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	uri, err := blobs.Put(context.Background(), "report.txt", []byte("full document text"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	store.documents[7] = &Document{ID: 7, Filename: "report.txt", StorageURI: uri}

	page := 3
	extractor := &fakeExtractor{doc: &llm.ExtractedDocument{
		Themes: []llm.ExtractedTheme{
			{
				Label: "BYD",
				Narratives: []llm.ExtractedNarrative{
					{
						Statement: "BYD exports keep accelerating",
						SubTheme:  "Demand outlook",
						Stance:    "bullish",
						Evidence: []llm.ExtractedEvidence{
							{Quote: "exports doubled", Page: &page},
							{Quote: ""},
							{Quote: "q2 deliveries beat"},
							{Quote: "a fourth quote"},
							{Quote: "a fifth quote"},
						},
					},
					{Statement: "price war pressures margins", SubTheme: "Margins"},
				},
			},
			{
				Label: "Gold",
				Narratives: []llm.ExtractedNarrative{
					{Statement: "central banks keep buying"},
				},
			},
		},
	}}
	resolver := newFakeResolver()

	pool := newTestPool(store, blobs, extractor, resolver)
	if err := pool.processJob(context.Background(), Job{ID: 1, DocumentID: 7}); err != nil {
		t.Fatalf("process job: %v", err)
	}

	if got := store.languages[7]; got != "en" {
		t.Fatalf("document language: got %q, want %q", got, "en")
	}
	if got := len(store.narratives); got != 3 {
		t.Fatalf("narratives stored: got %d, want 3", got)
	}
	if got := store.narratives[0].attrs; got.SubTheme != "Demand outlook" || got.Stance != "bullish" {
		t.Fatalf("narrative attrs: got %+v", got)
	}
	// The empty quote is skipped and the rest are capped at three.
	if got := len(store.evidence); got != 3 {
		t.Fatalf("evidence rows: got %d, want 3", got)
	}
	for _, row := range store.evidence {
		if row.documentID != 7 {
			t.Fatalf("evidence document: got %d, want 7", row.documentID)
		}
	}

	day := time.Now().UTC().Format("2006-01-02")
	if got := store.mentions["1/"+day]; got != 2 {
		t.Fatalf("byd mentions: got %d, want 2", got)
	}
	if got := store.mentions["2/"+day]; got != 1 {
		t.Fatalf("gold mentions: got %d, want 1", got)
	}
	if got := store.relations["1/2/"+day]; got != 1 {
		t.Fatalf("relation bumps: got %d, want 1", got)
	}
	if got := store.subThemes["1/Demand outlook/"+day]; got != 1 {
		t.Fatalf("sub-theme mentions: got %d, want 1", got)
	}
}

func TestPool_DuplicateLabelsResolveOnce(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	uri, err := blobs.Put(context.Background(), "doc.txt", []byte("text"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	store.documents[1] = &Document{ID: 1, StorageURI: uri}

	extractor := &fakeExtractor{doc: &llm.ExtractedDocument{
		Themes: []llm.ExtractedTheme{
			{Label: "BYD", Narratives: []llm.ExtractedNarrative{{Statement: "first"}}},
			{Label: "  byd ", Narratives: []llm.ExtractedNarrative{{Statement: "second"}}},
		},
	}}
	resolver := newFakeResolver()

	pool := newTestPool(store, blobs, extractor, resolver)
	if err := pool.processJob(context.Background(), Job{ID: 1, DocumentID: 1}); err != nil {
		t.Fatalf("process job: %v", err)
	}

	if resolver.calls != 1 {
		t.Fatalf("resolver calls: got %d, want 1", resolver.calls)
	}
	if got := len(store.relations); got != 0 {
		t.Fatalf("relations for a single theme: got %d, want 0", got)
	}
	day := time.Now().UTC().Format("2006-01-02")
	if got := store.mentions["1/"+day]; got != 2 {
		t.Fatalf("mentions across duplicate labels: got %d, want 2", got)
	}
}

func TestPool_AliasedLabelsShareOneRelationRow(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	uri, err := blobs.Put(context.Background(), "doc.txt", []byte("text"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	store.documents[1] = &Document{ID: 1, StorageURI: uri}

	// "BYD" and "BYD Inc" are distinct canonicals that resolve onto the
	// same theme; "Gold" is its own.
	resolver := newFakeResolver()
	byd := &theme.Theme{ID: 1, Label: "BYD", CanonicalLabel: "byd"}
	resolver.byCan["byd"] = byd
	resolver.byCan["byd inc"] = byd
	resolver.nextID = 1

	extractor := &fakeExtractor{doc: &llm.ExtractedDocument{
		Themes: []llm.ExtractedTheme{
			{Label: "BYD", Narratives: []llm.ExtractedNarrative{{Statement: "exports accelerate"}}},
			{Label: "BYD Inc", Narratives: []llm.ExtractedNarrative{{Statement: "margins compress"}}},
			{Label: "Gold", Narratives: []llm.ExtractedNarrative{{Statement: "central banks buy"}}},
		},
	}}

	pool := newTestPool(store, blobs, extractor, resolver)
	if err := pool.processJob(context.Background(), Job{ID: 1, DocumentID: 1}); err != nil {
		t.Fatalf("process job: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	if got := len(store.relations); got != 1 {
		t.Fatalf("relation rows: got %d (%v), want 1", got, store.relations)
	}
	if got := store.relations["1/2/"+day]; got != 1 {
		t.Fatalf("co-mention bumps for one document: got %d, want 1", got)
	}
	if got := store.mentions["1/"+day]; got != 2 {
		t.Fatalf("byd mentions across aliased labels: got %d, want 2", got)
	}
}

func TestPool_RunJobMarksError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.documents[1] = &Document{ID: 1, StorageURI: "mem://gone"}
	blobs := &fakeBlobs{objects: map[string][]byte{}, err: fmt.Errorf("blob store down")}

	pool := newTestPool(store, blobs, &fakeExtractor{}, newFakeResolver())
	go pool.runJob(context.Background(), Job{ID: 9, DocumentID: 1})

	result := <-pool.results
	if result.err == nil {
		t.Fatalf("expected job failure")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.erroredMsg[9]; !ok {
		t.Fatalf("job error was not recorded")
	}
	if len(store.doneJobs) != 0 {
		t.Fatalf("failed job must not be marked done")
	}
}

func TestPool_RunJobMarksDone(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	uri, err := blobs.Put(context.Background(), "doc.txt", []byte("text"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	store.documents[1] = &Document{ID: 1, StorageURI: uri}

	pool := newTestPool(store, blobs, &fakeExtractor{doc: &llm.ExtractedDocument{}}, newFakeResolver())
	go pool.runJob(context.Background(), Job{ID: 4, DocumentID: 1})

	result := <-pool.results
	if result.err != nil {
		t.Fatalf("run job: %v", result.err)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.doneJobs) != 1 || store.doneJobs[0] != 4 {
		t.Fatalf("done jobs: got %v, want [4]", store.doneJobs)
	}
}

func TestPool_RunJobRecordsStatusAfterShutdown(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	uri, err := blobs.Put(context.Background(), "doc.txt", []byte("text"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	store.documents[1] = &Document{ID: 1, StorageURI: uri}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := newTestPool(store, blobs, &fakeExtractor{doc: &llm.ExtractedDocument{}}, newFakeResolver())
	go pool.runJob(ctx, Job{ID: 6, DocumentID: 1})

	result := <-pool.results
	if result.err == nil {
		t.Fatalf("expected the canceled context to fail the job")
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	// The job must not stay in processing: the error lands even though the
	// pool context is gone.
	if _, ok := store.erroredMsg[6]; !ok {
		t.Fatalf("job status was not recorded after shutdown")
	}
}

func TestPool_TickRespectsCapacity(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pool := newTestPool(store, &fakeBlobs{objects: map[string][]byte{}}, &fakeExtractor{doc: &llm.ExtractedDocument{}}, newFakeResolver())

	pool.inFlight = pool.cfg.MaxWorkers
	pool.tick(context.Background())
	if len(store.claimLims) != 0 {
		t.Fatalf("full pool must not claim jobs")
	}

	pool.inFlight = pool.cfg.MaxWorkers - 1
	pool.tick(context.Background())
	if len(store.claimLims) != 1 || store.claimLims[0] != 1 {
		t.Fatalf("claim limits: got %v, want [1]", store.claimLims)
	}
}

func TestPool_TickReapsBeforeClaiming(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	pool := newTestPool(store, &fakeBlobs{objects: map[string][]byte{}}, &fakeExtractor{doc: &llm.ExtractedDocument{}}, newFakeResolver())

	pool.inFlight = 2
	pool.results <- jobResult{jobID: 1}
	pool.results <- jobResult{jobID: 2, err: fmt.Errorf("failed")}

	pool.tick(context.Background())
	if pool.inFlight != 0 {
		t.Fatalf("in-flight after reap: got %d, want 0", pool.inFlight)
	}
	if len(store.claimLims) != 1 || store.claimLims[0] != pool.cfg.MaxWorkers {
		t.Fatalf("claim limits: got %v, want [%d]", store.claimLims, pool.cfg.MaxWorkers)
	}
}
