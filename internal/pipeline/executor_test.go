package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landrecords/rag-engine/internal/cache"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
	"github.com/landrecords/rag-engine/internal/planner"
)

type fakeOCR struct {
	mu       sync.Mutex
	calls    map[int]int
	order    []int
	failures map[int]int // page -> remaining failures, -1 for always
	errFor   func(page int) error
	onCall   func(page int)
	gates    map[int]chan struct{}
}

func newFakeOCR() *fakeOCR {
	return &fakeOCR{
		calls:    make(map[int]int),
		failures: make(map[int]int),
		gates:    make(map[int]chan struct{}),
	}
}

func (f *fakeOCR) Name() string { return "fake" }

func (f *fakeOCR) Recognize(ctx context.Context, page domain.PageImage) (domain.OCRResult, error) {
	f.mu.Lock()
	f.calls[page.Index]++
	onCall := f.onCall
	gate := f.gates[page.Index]
	remaining := f.failures[page.Index]
	if remaining > 0 {
		f.failures[page.Index] = remaining - 1
	}
	f.mu.Unlock()

	if onCall != nil {
		onCall(page.Index)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.OCRResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.order = append(f.order, page.Index)
	f.mu.Unlock()

	if remaining != 0 {
		if f.errFor != nil {
			return domain.OCRResult{}, f.errFor(page.Index)
		}
		return domain.OCRResult{}, domain.OCRError(fmt.Sprintf("unreadable page %d", page.Index+1), nil)
	}
	return domain.OCRResult{Text: fmt.Sprintf("page %d text", page.Index+1), Confidence: 0.8}, nil
}

func (f *fakeOCR) callCount(page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[page]
}

func (f *fakeOCR) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fakeTranslator struct {
	calls atomic.Int32
}

func (f *fakeTranslator) Model() string { return "fake-model" }

func (f *fakeTranslator) Translate(ctx context.Context, text, src, tgt string) (domain.Translation, error) {
	f.calls.Add(1)
	return domain.Translation{Text: strings.ToUpper(text), Confidence: 0.9}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	advances int
	failures []string
	cached   int
}

func (r *recordingSink) SetStage(string, domain.Stage) error { return nil }

func (r *recordingSink) Advance(string, domain.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advances++
	return nil
}

func (r *recordingSink) RecordFailure(jobID, chunkID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, chunkID)
	return nil
}

func (r *recordingSink) MarkCached(string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached++
	return nil
}

func makePages(n int) []domain.PageImage {
	pages := make([]domain.PageImage, n)
	for i := range pages {
		pages[i] = domain.PageImage{Index: i, ImagePath: fmt.Sprintf("/tmp/page_%d.jpg", i), Digest: fmt.Sprintf("digest-%d", i)}
	}
	return pages
}

func makeRequest(jobID string, pages, perChunk int, opts domain.Options) Request {
	p := makePages(pages)
	return Request{
		JobID:     jobID,
		SourceRef: "/docs/" + jobID + ".pdf",
		Pages:     p,
		Chunks:    planner.New(perChunk).Plan(jobID, pages),
		Options:   opts,
	}
}

func translateOpts() domain.Options {
	return domain.Options{Translate: true, UseCache: true, SourceLang: "ur", TargetLang: "en"}
}

func newTestExecutor(workers int, ocrEngine domain.OCREngine, tr domain.Translator, store *cache.Store, sink ProgressSink) *Executor {
	return New(Config{
		Workers: workers,
		Retry: RetryConfig{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		ModelVersion: "test-v1",
	}, Deps{
		OCR:        ocrEngine,
		Translator: tr,
		Cache:      store,
		Progress:   sink,
	})
}

func sequences(results []domain.ChunkResult) []int {
	seqs := make([]int, len(results))
	for i, r := range results {
		seqs[i] = r.Sequence
	}
	return seqs
}

func TestBatch_AssemblesInOrder(t *testing.T) {
	engine := newFakeOCR()
	tr := &fakeTranslator{}
	sink := &recordingSink{}
	exec := newTestExecutor(3, engine, tr, nil, sink)

	req := makeRequest("job-a", 25, 10, translateOpts())
	doc := exec.Batch(context.Background(), req)

	require.Len(t, doc.Chunks, 3)
	assert.Equal(t, domain.JobStatusCompleted, doc.Status)
	assert.Equal(t, 25, doc.TotalPages)
	assert.Equal(t, 3, doc.TotalChunks)
	assert.Equal(t, []int{0, 1, 2}, sequences(doc.Chunks))
	assert.Equal(t, domain.PageRange{Start: 20, End: 25}, doc.Chunks[2].Pages)

	first := doc.Chunks[0]
	assert.Equal(t, domain.ChunkTranslated, first.State)
	assert.True(t, strings.HasPrefix(first.CleanedText, "page 1 text\n\npage 2 text"))
	assert.Equal(t, strings.ToUpper(first.CleanedText), first.TranslatedText)
	assert.InDelta(t, 0.8, first.Confidence, 1e-9)
	assert.Len(t, first.Fingerprint, 64)

	assert.Contains(t, doc.FullText, "page 11 text")
	assert.Contains(t, doc.FullText, "page 25 text")
	assert.Equal(t, 2, strings.Count(doc.FullText, DocumentSeparator))
	assert.Equal(t, 2, strings.Count(doc.FullTranslation, DocumentSeparator))
	assert.Equal(t, 3, sink.advances)
	assert.EqualValues(t, 3, tr.calls.Load())
}

func TestStream_MatchesBatch(t *testing.T) {
	opts := translateOpts()
	opts.UseCache = false

	batch := newTestExecutor(4, newFakeOCR(), &fakeTranslator{}, nil, nil).
		Batch(context.Background(), makeRequest("job-eq", 37, 5, opts))

	var streamed []domain.ChunkResult
	for r := range newTestExecutor(4, newFakeOCR(), &fakeTranslator{}, nil, nil).
		Stream(context.Background(), makeRequest("job-eq", 37, 5, opts)) {
		streamed = append(streamed, r)
	}

	require.Len(t, streamed, len(batch.Chunks))
	for i := range streamed {
		assert.Equal(t, batch.Chunks[i].ChunkID, streamed[i].ChunkID)
		assert.Equal(t, batch.Chunks[i].CleanedText, streamed[i].CleanedText)
		assert.Equal(t, batch.Chunks[i].TranslatedText, streamed[i].TranslatedText)
		assert.Equal(t, batch.Chunks[i].State, streamed[i].State)
	}
}

func TestStream_OutOfOrderCompletionEmitsInOrder(t *testing.T) {
	engine := newFakeOCR()
	gate := make(chan struct{})
	engine.gates[0] = gate

	var once sync.Once
	engine.onCall = func(page int) {
		if page == 1 {
			once.Do(func() {
				// let chunk 1 finish first, then release chunk 0
				go func() {
					time.Sleep(20 * time.Millisecond)
					close(gate)
				}()
			})
		}
	}

	exec := newTestExecutor(2, engine, &fakeTranslator{}, nil, nil)
	req := makeRequest("job-ooo", 2, 1, domain.Options{})

	var emitted []int
	for r := range exec.Stream(context.Background(), req) {
		emitted = append(emitted, r.Sequence)
	}

	assert.Equal(t, []int{0, 1}, emitted)
	engine.mu.Lock()
	assert.Equal(t, []int{1, 0}, engine.order, "chunk 1 should have completed first")
	engine.mu.Unlock()
}

func TestBatch_PartialFailure(t *testing.T) {
	engine := newFakeOCR()
	engine.failures[4] = -1
	sink := &recordingSink{}
	exec := newTestExecutor(3, engine, &fakeTranslator{}, nil, sink)

	doc := exec.Batch(context.Background(), makeRequest("job-pf", 10, 1, translateOpts()))

	require.Len(t, doc.Chunks, 10)
	assert.Equal(t, domain.JobStatusCompletedWithErrors, doc.Status)
	assert.Equal(t, 1, doc.FailedChunks)

	failed := doc.Chunks[4]
	assert.Equal(t, domain.ChunkFailed, failed.State)
	assert.Contains(t, failed.Error, "unreadable page 5")
	assert.Equal(t, "[chunk 4 pages 5-5 failed: "+failed.Error+"]", failed.CleanedText)
	assert.Contains(t, doc.FullText, failed.CleanedText)

	for i, c := range doc.Chunks {
		if i != 4 {
			assert.Equal(t, domain.ChunkTranslated, c.State)
		}
	}

	assert.Equal(t, 3, engine.callCount(4), "one attempt plus two retries")
	assert.Equal(t, []string{"job-pf:4"}, sink.failures)
	assert.Equal(t, 10, sink.advances, "failed chunks still advance progress")
}

func TestBatch_AllChunksFailedIsCompletedWithErrors(t *testing.T) {
	engine := newFakeOCR()
	for i := 0; i < 3; i++ {
		engine.failures[i] = -1
	}
	exec := newTestExecutor(2, engine, &fakeTranslator{}, nil, nil)

	doc := exec.Batch(context.Background(), makeRequest("job-all", 3, 1, domain.Options{}))
	assert.Equal(t, domain.JobStatusCompletedWithErrors, doc.Status)
	assert.Equal(t, 3, doc.FailedChunks)
}

func TestBatch_PermanentErrorNotRetried(t *testing.T) {
	engine := newFakeOCR()
	engine.failures[0] = -1
	engine.errFor = func(page int) error {
		return domain.OCRError("page image unavailable", nil).AsPermanent()
	}
	exec := newTestExecutor(1, engine, &fakeTranslator{}, nil, nil)

	doc := exec.Batch(context.Background(), makeRequest("job-perm", 1, 1, domain.Options{}))
	assert.Equal(t, domain.ChunkFailed, doc.Chunks[0].State)
	assert.Equal(t, 1, engine.callCount(0))
}

func TestBatch_RetrySucceeds(t *testing.T) {
	engine := newFakeOCR()
	engine.failures[0] = 2
	exec := newTestExecutor(1, engine, &fakeTranslator{}, nil, nil)

	doc := exec.Batch(context.Background(), makeRequest("job-retry", 1, 1, translateOpts()))
	assert.Equal(t, domain.JobStatusCompleted, doc.Status)
	assert.Equal(t, domain.ChunkTranslated, doc.Chunks[0].State)
	assert.Equal(t, 3, engine.callCount(0))
}

func TestBatch_CancellationStopsAtChunkBoundary(t *testing.T) {
	engine := newFakeOCR()
	var cancelled atomic.Bool
	engine.onCall = func(page int) {
		if page == 3 {
			cancelled.Store(true)
		}
	}
	exec := newTestExecutor(1, engine, &fakeTranslator{}, nil, nil)

	req := makeRequest("job-cancel", 10, 1, domain.Options{})
	req.Cancelled = cancelled.Load

	doc := exec.Batch(context.Background(), req)

	assert.Equal(t, domain.JobStatusCancelled, doc.Status)
	assert.Equal(t, []int{0, 1, 2, 3}, sequences(doc.Chunks))
	for page := 4; page < 10; page++ {
		assert.Zero(t, engine.callCount(page), "page %d must never start", page+1)
	}
}

func TestBatch_ContextCancelledBeforeStart(t *testing.T) {
	engine := newFakeOCR()
	exec := newTestExecutor(2, engine, &fakeTranslator{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := exec.Batch(ctx, makeRequest("job-ctx", 5, 1, domain.Options{}))
	assert.Equal(t, domain.JobStatusCancelled, doc.Status)
	assert.Zero(t, engine.totalCalls())
}

func TestBatch_ContextCancelledMidFlightKeepsPrefix(t *testing.T) {
	for trial := 0; trial < 50; trial++ {
		engine := newFakeOCR()
		var started sync.WaitGroup
		started.Add(6)
		engine.onCall = func(int) { started.Done() }
		release := make(chan struct{})
		for page := 0; page < 6; page++ {
			engine.gates[page] = release
		}
		exec := newTestExecutor(6, engine, &fakeTranslator{}, nil, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan *domain.DocumentResult, 1)
		go func() {
			done <- exec.Batch(ctx, makeRequest("job-inflight", 6, 1, domain.Options{}))
		}()

		started.Wait()
		cancel()
		close(release)

		doc := <-done
		seqs := sequences(doc.Chunks)
		for i, seq := range seqs {
			require.Equal(t, i, seq, "trial %d: results %v are not a prefix of the plan", trial, seqs)
		}
		assert.Equal(t, domain.JobStatusCancelled, doc.Status)
	}
}

func TestBatch_CacheSharedAcrossJobs(t *testing.T) {
	store := cache.NewStore(cache.NewMemoryBackend(100), nil)
	engine := newFakeOCR()
	tr := &fakeTranslator{}
	sink := &recordingSink{}
	exec := newTestExecutor(2, engine, tr, store, sink)

	first := exec.Batch(context.Background(), makeRequest("job-1", 6, 2, translateOpts()))
	require.Equal(t, domain.JobStatusCompleted, first.Status)
	callsAfterFirst := engine.totalCalls()

	second := exec.Batch(context.Background(), makeRequest("job-2", 6, 2, translateOpts()))
	assert.Equal(t, domain.JobStatusCompleted, second.Status)
	assert.Equal(t, 3, second.CachedChunks)
	assert.Equal(t, callsAfterFirst, engine.totalCalls(), "cache hits skip OCR")
	assert.EqualValues(t, 3, tr.calls.Load(), "cache hits skip translation")
	assert.Equal(t, 3, sink.cached)

	for i := range second.Chunks {
		assert.Equal(t, domain.ChunkCached, second.Chunks[i].State)
		assert.Equal(t, first.Chunks[i].TranslatedText, second.Chunks[i].TranslatedText)
		assert.Equal(t, first.Chunks[i].Fingerprint, second.Chunks[i].Fingerprint)
		assert.NotEqual(t, first.Chunks[i].ChunkID, second.Chunks[i].ChunkID)
	}
}

func TestBatch_UseCacheFalseRecomputes(t *testing.T) {
	store := cache.NewStore(cache.NewMemoryBackend(100), nil)
	engine := newFakeOCR()
	exec := newTestExecutor(1, engine, &fakeTranslator{}, store, nil)

	opts := domain.Options{UseCache: false}
	exec.Batch(context.Background(), makeRequest("job-1", 2, 1, opts))
	doc := exec.Batch(context.Background(), makeRequest("job-2", 2, 1, opts))

	assert.Zero(t, doc.CachedChunks)
	assert.Equal(t, 4, engine.totalCalls())
}

func TestBatch_TranslationFlagChangesFingerprint(t *testing.T) {
	store := cache.NewStore(cache.NewMemoryBackend(100), nil)
	exec := newTestExecutor(1, newFakeOCR(), &fakeTranslator{}, store, nil)

	plain := exec.Batch(context.Background(), makeRequest("job-1", 1, 1, domain.Options{UseCache: true}))
	translated := exec.Batch(context.Background(), makeRequest("job-2", 1, 1, translateOpts()))

	assert.NotEqual(t, plain.Chunks[0].Fingerprint, translated.Chunks[0].Fingerprint)
	assert.Equal(t, domain.ChunkTranslated, translated.Chunks[0].State)
}

func TestBatch_TranslationSkipped(t *testing.T) {
	tr := &fakeTranslator{}
	exec := newTestExecutor(1, newFakeOCR(), tr, nil, nil)

	doc := exec.Batch(context.Background(), makeRequest("job-nt", 3, 1, domain.Options{}))
	for _, c := range doc.Chunks {
		assert.Equal(t, domain.ChunkOCRDone, c.State)
		assert.Empty(t, c.TranslatedText)
	}
	assert.Empty(t, doc.FullTranslation)
	assert.Zero(t, tr.calls.Load())
}

type blankOCR struct{}

func (blankOCR) Name() string { return "blank" }

func (blankOCR) Recognize(ctx context.Context, page domain.PageImage) (domain.OCRResult, error) {
	return domain.OCRResult{Text: "   ", Confidence: 0.1}, nil
}

func TestBatch_EmptyTextSkipsTranslation(t *testing.T) {
	tr := &fakeTranslator{}
	exec := newTestExecutor(1, blankOCR{}, tr, nil, nil)

	doc := exec.Batch(context.Background(), makeRequest("job-blank", 2, 1, translateOpts()))
	assert.Equal(t, domain.JobStatusCompleted, doc.Status)
	for _, c := range doc.Chunks {
		assert.Equal(t, domain.ChunkOCRDone, c.State)
	}
	assert.Zero(t, tr.calls.Load())
}

func TestBatch_ZeroPages(t *testing.T) {
	exec := newTestExecutor(2, newFakeOCR(), &fakeTranslator{}, nil, nil)

	doc := exec.Batch(context.Background(), makeRequest("job-empty", 0, 10, translateOpts()))
	assert.Equal(t, domain.JobStatusCompleted, doc.Status)
	assert.Empty(t, doc.Chunks)
	assert.NotNil(t, doc.Chunks)
	assert.Empty(t, doc.FullText)
}

func TestBatch_PageRangeOutsideDocument(t *testing.T) {
	exec := newTestExecutor(1, newFakeOCR(), &fakeTranslator{}, nil, nil)

	req := makeRequest("job-bad", 2, 1, domain.Options{})
	req.Chunks = append(req.Chunks, domain.ChunkDescriptor{
		ChunkID: "job-bad:2", JobID: "job-bad", Sequence: 2,
		Pages: domain.PageRange{Start: 2, End: 4},
	})

	doc := exec.Batch(context.Background(), req)
	require.Len(t, doc.Chunks, 3)
	assert.Equal(t, domain.ChunkFailed, doc.Chunks[2].State)
}

func TestAssemble_ExtractsFields(t *testing.T) {
	req := Request{JobID: "j", Chunks: []domain.ChunkDescriptor{{Sequence: 0}}, Options: domain.Options{Translate: true}}
	results := []domain.ChunkResult{{
		Sequence:       0,
		State:          domain.ChunkTranslated,
		TranslatedText: "Khasra No. 12/4\nVillage: Rajpura",
	}}

	doc := Assemble(req, results, time.Now())
	assert.Equal(t, "12/4", doc.Fields["khasra_number"])
	assert.Equal(t, "Rajpura", doc.Fields["village"])
}

func TestWithRetry_StopsOnContextError(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond}, nopLogger(), "op",
		func() (int, error) {
			calls++
			return 0, fmt.Errorf("wrapped: %w", context.DeadlineExceeded)
		})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}

	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(2, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(6, cfg))
}

func TestReorderBuffer(t *testing.T) {
	buf := newReorderBuffer()

	assert.Empty(t, buf.Push(domain.ChunkResult{Sequence: 2}))
	assert.Empty(t, buf.Push(domain.ChunkResult{Sequence: 1}))
	assert.Equal(t, 2, buf.Held())

	ready := buf.Push(domain.ChunkResult{Sequence: 0})
	assert.Equal(t, []int{0, 1, 2}, sequences(ready))
	assert.Zero(t, buf.Held())

	assert.Equal(t, []int{3}, sequences(buf.Push(domain.ChunkResult{Sequence: 3})))
}

func nopLogger() *observability.Logger {
	return observability.NopLogger()
}
