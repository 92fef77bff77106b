// Package pipeline drives chunks through OCR, cleaning, translation and the
// chunk cache, in batch or streaming mode.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/landrecords/rag-engine/internal/cache"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
	"github.com/landrecords/rag-engine/internal/ocr"
	"github.com/landrecords/rag-engine/internal/textclean"
)

// DocumentSeparator joins chunk texts in the assembled document.
const DocumentSeparator = "\n\n---\n\n"

// ProgressSink receives per-chunk progress. The progress tracker implements
// it; errors are informational only.
type ProgressSink interface {
	SetStage(jobID string, stage domain.Stage) error
	Advance(jobID string, stage domain.Stage) error
	RecordFailure(jobID, chunkID, message string) error
	MarkCached(jobID string) error
}

// Config holds executor settings.
type Config struct {
	Workers      int
	Retry        RetryConfig
	ModelVersion string
}

// Request describes one job's worth of chunks.
type Request struct {
	JobID     string
	SourceRef string
	Pages     []domain.PageImage
	Chunks    []domain.ChunkDescriptor
	Options   domain.Options
	// Cancelled is polled before each chunk starts. Nil means never.
	Cancelled func() bool
}

// Executor processes chunks with bounded concurrency.
type Executor struct {
	cfg        Config
	ocr        domain.OCREngine
	cleaner    domain.Cleaner
	translator domain.Translator
	cache      *cache.Store
	progress   ProgressSink
	logger     *observability.Logger
}

// Deps are the executor's collaborators. Cache and Progress may be nil.
type Deps struct {
	OCR        domain.OCREngine
	Cleaner    domain.Cleaner
	Translator domain.Translator
	Cache      *cache.Store
	Progress   ProgressSink
	Logger     *observability.Logger
}

// New creates an executor.
func New(cfg Config, deps Deps) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	def := DefaultRetryConfig()
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry.InitialBackoff = def.InitialBackoff
	}
	if cfg.Retry.MaxBackoff <= 0 {
		cfg.Retry.MaxBackoff = def.MaxBackoff
	}
	if deps.Cleaner == nil {
		deps.Cleaner = textclean.New()
	}
	if deps.Progress == nil {
		deps.Progress = nopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	return &Executor{
		cfg:        cfg,
		ocr:        deps.OCR,
		cleaner:    deps.Cleaner,
		translator: deps.Translator,
		cache:      deps.Cache,
		progress:   deps.Progress,
		logger:     deps.Logger,
	}
}

// Stream processes the request and emits chunk results in sequence order as
// soon as every earlier chunk has been emitted. The channel is closed when
// all started chunks are done. Once cancellation is observed no further
// chunk is started, so the emitted results are always a prefix of the plan.
func (e *Executor) Stream(ctx context.Context, req Request) <-chan domain.ChunkResult {
	out := make(chan domain.ChunkResult)

	go func() {
		defer close(out)

		completions := make(chan domain.ChunkResult, len(req.Chunks))
		go e.dispatch(ctx, req, completions)

		// After ctx is done nothing more is emitted; in-flight completions are
		// drained so dispatch can finish.
		buf := newReorderBuffer()
		stopped := false
		for res := range completions {
			if stopped {
				continue
			}
			for _, ready := range buf.Push(res) {
				if ctx.Err() != nil {
					stopped = true
					break
				}
				select {
				case out <- ready:
				case <-ctx.Done():
					stopped = true
				}
				if stopped {
					break
				}
			}
		}
	}()

	return out
}

// dispatch starts chunks in plan order, holding a worker slot for each.
func (e *Executor) dispatch(ctx context.Context, req Request, completions chan<- domain.ChunkResult) {
	sem := make(chan struct{}, e.cfg.Workers)
	var wg sync.WaitGroup

	defer func() {
		wg.Wait()
		close(completions)
	}()

	for _, chunk := range req.Chunks {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		if ctx.Err() != nil || (req.Cancelled != nil && req.Cancelled()) {
			<-sem
			e.logger.Info().
				Str("job_id", req.JobID).
				Int("next_sequence", chunk.Sequence).
				Msg("cancellation observed, no further chunks started")
			return
		}

		wg.Add(1)
		go func(chunk domain.ChunkDescriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			completions <- e.processChunk(ctx, req, chunk)
		}(chunk)
	}
}

// Batch processes every chunk and returns the assembled document.
func (e *Executor) Batch(ctx context.Context, req Request) *domain.DocumentResult {
	started := time.Now()

	results := make([]domain.ChunkResult, 0, len(req.Chunks))
	for res := range e.Stream(ctx, req) {
		results = append(results, res)
	}

	return Assemble(req, results, started)
}

// Assemble builds the document result from ordered chunk results. Fewer
// results than planned chunks means the job was cancelled.
func Assemble(req Request, results []domain.ChunkResult, startedAt time.Time) *domain.DocumentResult {
	completedAt := time.Now()

	doc := &domain.DocumentResult{
		JobID:       req.JobID,
		SourceRef:   req.SourceRef,
		TotalPages:  len(req.Pages),
		TotalChunks: len(req.Chunks),
		Chunks:      results,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
	if doc.Chunks == nil {
		doc.Chunks = []domain.ChunkResult{}
	}

	texts := make([]string, 0, len(results))
	translations := make([]string, 0, len(results))
	for _, r := range results {
		switch r.State {
		case domain.ChunkFailed:
			doc.FailedChunks++
		case domain.ChunkCached:
			doc.CachedChunks++
		}
		texts = append(texts, r.CleanedText)
		if req.Options.Translate {
			translations = append(translations, r.TranslatedText)
		}
	}

	doc.FullText = strings.Join(texts, DocumentSeparator)
	if req.Options.Translate {
		doc.FullTranslation = strings.Join(translations, DocumentSeparator)
	}

	fieldSource := doc.FullTranslation
	if fieldSource == "" {
		fieldSource = doc.FullText
	}
	if fields := textclean.ExtractFields(fieldSource); len(fields) > 0 {
		doc.Fields = fields
	}

	switch {
	case len(results) < len(req.Chunks):
		doc.Status = domain.JobStatusCancelled
	case doc.FailedChunks > 0:
		doc.Status = domain.JobStatusCompletedWithErrors
	default:
		doc.Status = domain.JobStatusCompleted
	}

	return doc
}

// processChunk runs one chunk end to end. It never returns an error; a
// failure is recorded on the result.
func (e *Executor) processChunk(ctx context.Context, req Request, chunk domain.ChunkDescriptor) domain.ChunkResult {
	start := time.Now()
	logger := e.logger.With().
		Str("job_id", req.JobID).
		Str("chunk_id", chunk.ChunkID).
		Int("sequence", chunk.Sequence).
		Logger()

	res := domain.ChunkResult{
		ChunkID:  chunk.ChunkID,
		Sequence: chunk.Sequence,
		Pages:    chunk.Pages,
		State:    domain.ChunkPending,
	}

	if chunk.Pages.Start < 0 || chunk.Pages.End > len(req.Pages) || chunk.Pages.Start > chunk.Pages.End {
		err := domain.ValidationError(fmt.Sprintf("page range %s outside document of %d pages", chunk.Pages, len(req.Pages)), nil)
		return e.fail(req, res, err, start, logger)
	}
	pages := req.Pages[chunk.Pages.Start:chunk.Pages.End]

	res.Fingerprint = cache.Fingerprint(e.fingerprintInput(req.Options, pages))

	if req.Options.UseCache && e.cache != nil {
		if entry, ok := e.cache.Get(ctx, res.Fingerprint); ok {
			res.RawText = entry.RawText
			res.Confidence = entry.Confidence
			res.CleanedText = entry.CleanedText
			res.TranslatedText = entry.TranslatedText
			res.TranslationConfidence = entry.TranslationConfidence
			res.State = domain.ChunkCached
			res.Duration = time.Since(start)

			_ = e.progress.MarkCached(req.JobID)
			_ = e.progress.Advance(req.JobID, domain.StageOCR)
			logger.Debug().Msg("chunk served from cache")
			return res
		}
	}

	_ = e.progress.SetStage(req.JobID, domain.StageOCR)
	ocrRes, err := withRetry(ctx, e.cfg.Retry, logger, "ocr", func() (domain.OCRResult, error) {
		return ocr.RecognizePages(ctx, e.ocr, pages)
	})
	if err != nil {
		return e.fail(req, res, err, start, logger)
	}

	res.RawText = ocrRes.Text
	res.Confidence = ocrRes.Confidence
	res.CleanedText = e.cleaner.Clean(ocrRes.Text)
	res.State = domain.ChunkOCRDone

	stage := domain.StageOCR
	if req.Options.Translate && res.CleanedText != "" {
		stage = domain.StageTranslating
		_ = e.progress.SetStage(req.JobID, stage)

		tr, err := withRetry(ctx, e.cfg.Retry, logger, "translate", func() (domain.Translation, error) {
			return e.translator.Translate(ctx, res.CleanedText, req.Options.SourceLang, req.Options.TargetLang)
		})
		if err != nil {
			return e.fail(req, res, err, start, logger)
		}
		res.TranslatedText = tr.Text
		res.TranslationConfidence = tr.Confidence
		res.State = domain.ChunkTranslated
	}

	if e.cache != nil {
		e.cache.Put(ctx, res.Fingerprint, cache.Entry{
			RawText:               res.RawText,
			Confidence:            res.Confidence,
			CleanedText:           res.CleanedText,
			TranslatedText:        res.TranslatedText,
			TranslationConfidence: res.TranslationConfidence,
			Translated:            res.State == domain.ChunkTranslated,
			ModelVersion:          e.cfg.ModelVersion,
		})
	}

	res.Duration = time.Since(start)
	_ = e.progress.Advance(req.JobID, stage)

	logger.Debug().
		Str("state", string(res.State)).
		Dur("duration", res.Duration).
		Msg("chunk processed")
	return res
}

func (e *Executor) fingerprintInput(opts domain.Options, pages []domain.PageImage) cache.FingerprintInput {
	digests := make([]string, len(pages))
	for i, p := range pages {
		digests[i] = p.Digest
	}
	in := cache.FingerprintInput{
		ModelVersion: e.cfg.ModelVersion,
		Translate:    opts.Translate,
		PageDigests:  digests,
	}
	if opts.Translate {
		in.SourceLang = opts.SourceLang
		in.TargetLang = opts.TargetLang
	}
	return in
}

// fail marks res failed and replaces its text with an error marker.
func (e *Executor) fail(req Request, res domain.ChunkResult, err error, start time.Time, logger *observability.Logger) domain.ChunkResult {
	marker := fmt.Sprintf("[chunk %d pages %s failed: %v]", res.Sequence, res.Pages, err)

	res.State = domain.ChunkFailed
	res.Error = err.Error()
	res.CleanedText = marker
	if req.Options.Translate {
		res.TranslatedText = marker
		res.TranslationConfidence = 0
	}
	res.Duration = time.Since(start)

	_ = e.progress.RecordFailure(req.JobID, res.ChunkID, res.Error)
	_ = e.progress.Advance(req.JobID, domain.StageOCR)

	logger.Warn().
		Err(err).
		Int("sequence", res.Sequence).
		Str("pages", res.Pages.String()).
		Msg("chunk failed")
	return res
}

type nopSink struct{}

func (nopSink) SetStage(string, domain.Stage) error        { return nil }
func (nopSink) Advance(string, domain.Stage) error         { return nil }
func (nopSink) RecordFailure(string, string, string) error { return nil }
func (nopSink) MarkCached(string) error                    { return nil }
