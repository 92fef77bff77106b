// Package jobs is the job submission surface: admission control, the job
// queue, results, streaming subscriptions, search and cache maintenance.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/landrecords/rag-engine/internal/cache"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
	"github.com/landrecords/rag-engine/internal/pipeline"
	"github.com/landrecords/rag-engine/internal/planner"
	"github.com/landrecords/rag-engine/internal/progress"
	"github.com/landrecords/rag-engine/internal/search"
	"github.com/landrecords/rag-engine/internal/translate"
)

var (
	// ErrNotFound is returned for unknown or expired job ids.
	ErrNotFound = errors.New("job not found")
	// ErrOverloaded is returned when the job queue is full.
	ErrOverloaded = errors.New("job queue is full")
	// ErrPending is returned by Result while the job is still running.
	ErrPending = errors.New("job not finished")
	// ErrJobFailed is returned by Result for jobs that failed as a whole.
	ErrJobFailed = errors.New("job failed")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("job manager is shut down")
)

// SourceValidator checks a source reference before a job is created.
type SourceValidator interface {
	ValidateSource(sourceRef string) error
}

// Config holds admission control and retention settings.
type Config struct {
	MaxConcurrentJobs int
	MaxQueueDepth     int
	Retention         time.Duration
	JanitorInterval   time.Duration
	SourceLang        string
	TargetLang        string
}

// Deps are the manager's collaborators. Validator and Cache may be nil.
type Deps struct {
	Extractor domain.PageExtractor
	Validator SourceValidator
	Planner   *planner.Planner
	Executor  *pipeline.Executor
	Progress  *progress.Tracker
	Index     *search.Index
	Cache     *cache.Store
	Logger    *observability.Logger
}

// Manager owns every job from submission until it is evicted.
type Manager struct {
	cfg       Config
	extractor domain.PageExtractor
	validator SourceValidator
	planner   *planner.Planner
	executor  *pipeline.Executor
	progress  *progress.Tracker
	index     *search.Index
	cache     *cache.Store
	logger    *observability.Logger

	queue chan *job

	mu     sync.RWMutex
	jobs   map[string]*job
	closed bool

	ctx       context.Context
	stop      context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewManager creates a manager. Call Start before submitting jobs.
func NewManager(cfg Config, deps Deps) *Manager {
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 1
	}
	if cfg.MaxQueueDepth < 0 {
		cfg.MaxQueueDepth = 0
	}
	if cfg.SourceLang == "" {
		cfg.SourceLang = "ur"
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "en"
	}
	if deps.Planner == nil {
		deps.Planner = planner.New(0)
	}
	if deps.Progress == nil {
		deps.Progress = progress.NewTracker(deps.Logger)
	}
	if deps.Index == nil {
		deps.Index = search.NewIndex()
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		extractor: deps.Extractor,
		validator: deps.Validator,
		planner:   deps.Planner,
		executor:  deps.Executor,
		progress:  deps.Progress,
		index:     deps.Index,
		cache:     deps.Cache,
		logger:    deps.Logger.WithOperation("jobs"),
		queue:     make(chan *job, cfg.MaxQueueDepth),
		jobs:      make(map[string]*job),
		ctx:       ctx,
		stop:      stop,
	}
}

// Start launches the job runners and the retention janitor.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		for i := 0; i < m.cfg.MaxConcurrentJobs; i++ {
			m.wg.Add(1)
			go m.runner()
		}

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.progress.Run(m.ctx, m.cfg.JanitorInterval, m.cfg.Retention, m.evict)
		}()

		m.logger.Info().
			Int("max_concurrent_jobs", m.cfg.MaxConcurrentJobs).
			Int("max_queue_depth", m.cfg.MaxQueueDepth).
			Msg("job manager started")
	})
}

// Shutdown stops accepting jobs, cancels running ones and waits for the
// runners to exit or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.stop()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown jobs: %w", ctx.Err())
	}
}

// Submit validates the source and queues a job. Input errors are returned
// immediately and no job is created. A full queue yields ErrOverloaded.
func (m *Manager) Submit(sourceRef string, opts domain.Options) (string, error) {
	if m.validator != nil {
		if err := m.validator.ValidateSource(sourceRef); err != nil {
			return "", err
		}
	}

	if opts.SourceLang == "" {
		opts.SourceLang = m.cfg.SourceLang
	}
	if opts.TargetLang == "" {
		opts.TargetLang = m.cfg.TargetLang
	}
	if opts.Translate {
		if err := translate.ValidatePair(opts.SourceLang, opts.TargetLang); err != nil {
			return "", domain.ValidationError("invalid language pair", err)
		}
	}

	j := newJob(uuid.NewString(), sourceRef, opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", ErrClosed
	}

	if err := m.progress.Create(j.id, 0); err != nil {
		return "", fmt.Errorf("track job: %w", err)
	}

	select {
	case m.queue <- j:
	default:
		m.progress.Forget(j.id)
		m.logger.Warn().Str("source_ref", sourceRef).Msg("job rejected, queue full")
		return "", ErrOverloaded
	}

	m.jobs[j.id] = j
	m.logger.Info().
		Str("job_id", j.id).
		Str("source_ref", sourceRef).
		Bool("translate", opts.Translate).
		Bool("use_cache", opts.UseCache).
		Msg("job queued")
	return j.id, nil
}

// Progress returns the job's progress record.
func (m *Manager) Progress(jobID string) (progress.Record, error) {
	rec, err := m.progress.Get(jobID)
	if errors.Is(err, progress.ErrNotFound) {
		return progress.Record{}, ErrNotFound
	}
	return rec, err
}

// Result returns the assembled document of a finished job. Running jobs
// yield ErrPending; jobs that failed as a whole yield ErrJobFailed.
func (m *Manager) Result(jobID string) (*domain.DocumentResult, error) {
	j, ok := m.lookup(jobID)
	if !ok {
		return nil, ErrNotFound
	}

	result, done, err := j.outcome()
	switch {
	case !done:
		return nil, ErrPending
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrJobFailed, err)
	}
	return result, nil
}

// Wait blocks until the job finishes or ctx is done and returns its result.
func (m *Manager) Wait(ctx context.Context, jobID string) (*domain.DocumentResult, error) {
	j, ok := m.lookup(jobID)
	if !ok {
		return nil, ErrNotFound
	}

	select {
	case <-j.finished:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.Result(jobID)
}

// Cancel stops a job. A queued job is cancelled at once; a running job stops
// starting chunks at the next chunk boundary. Finished jobs are unaffected.
func (m *Manager) Cancel(jobID string) error {
	j, ok := m.lookup(jobID)
	if !ok {
		return ErrNotFound
	}

	if err := m.progress.RequestCancel(jobID); err != nil && !errors.Is(err, progress.ErrNotFound) {
		return err
	}

	m.cancelQueued(j)

	m.logger.Info().Str("job_id", jobID).Msg("job cancellation requested")
	return nil
}

// Subscribe replays the job's events so far and then follows live ones.
// The channel closes after the final event or when ctx is done.
func (m *Manager) Subscribe(ctx context.Context, jobID string) (<-chan domain.StreamEvent, error) {
	j, ok := m.lookup(jobID)
	if !ok {
		return nil, ErrNotFound
	}

	out := make(chan domain.StreamEvent)
	go func() {
		defer close(out)

		next := 0
		for {
			events, updated, done := j.since(next)
			for _, ev := range events {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			next += len(events)

			if done {
				return
			}
			select {
			case <-updated:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Search runs a term-overlap query over every indexed chunk.
func (m *Manager) Search(query string, topK int) []search.Hit {
	return m.index.Query(query, topK)
}

// ClearCache evicts cache entries older than olderThan; zero or negative
// clears the whole cache.
func (m *Manager) ClearCache(ctx context.Context, olderThan time.Duration) (int, error) {
	if m.cache == nil {
		return 0, nil
	}
	n, err := m.cache.EvictOlderThan(ctx, olderThan)
	if err != nil {
		return n, fmt.Errorf("clear cache: %w", err)
	}
	return n, nil
}

func (m *Manager) lookup(jobID string) (*job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	return j, ok
}

// evict forgets jobs the progress janitor expired.
func (m *Manager) evict(ids []string) {
	m.mu.Lock()
	for _, id := range ids {
		delete(m.jobs, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.index.RemoveJob(id)
	}
	m.logger.Debug().Int("jobs", len(ids)).Msg("expired jobs evicted")
}

func (m *Manager) runner() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			m.drainQueue()
			return
		case j := <-m.queue:
			if m.ctx.Err() != nil {
				m.cancelQueued(j)
				continue
			}
			if !j.claim() {
				continue
			}
			m.run(m.ctx, j)
		}
	}
}

// drainQueue cancels jobs still queued at shutdown.
func (m *Manager) drainQueue() {
	for {
		select {
		case j := <-m.queue:
			m.cancelQueued(j)
		default:
			return
		}
	}
}

// cancelQueued finishes j as cancelled if no runner has picked it up yet.
func (m *Manager) cancelQueued(j *job) {
	if j.claim() {
		m.finishCancelled(j, time.Now())
	}
}

// run executes one job end to end.
func (m *Manager) run(ctx context.Context, j *job) {
	logger := m.logger.WithJob(j.id)
	started := time.Now()

	_ = m.progress.SetStatus(j.id, domain.JobStatusExtracting)
	pages, err := m.extractor.Extract(ctx, j.sourceRef)
	if err != nil {
		if ctx.Err() != nil {
			m.finishCancelled(j, started)
			return
		}
		m.failJob(j, err, logger)
		return
	}
	defer func() {
		if err := pages.Cleanup(); err != nil {
			logger.Warn().Err(err).Msg("page cleanup failed")
		}
	}()

	chunks := m.planner.Plan(j.id, len(pages.Pages))
	_ = m.progress.SetTotals(j.id, len(pages.Pages), len(chunks))
	_ = m.progress.SetStatus(j.id, domain.JobStatusProcessing)

	logger.Info().
		Int("pages", len(pages.Pages)).
		Int("chunks", len(chunks)).
		Int("pages_per_chunk", m.planner.MaxPagesPerChunk()).
		Dur("queued_for", started.Sub(j.submitted)).
		Msg("job planned")

	req := pipeline.Request{
		JobID:     j.id,
		SourceRef: j.sourceRef,
		Pages:     pages.Pages,
		Chunks:    chunks,
		Options:   j.opts,
		Cancelled: func() bool { return m.progress.CancelRequested(j.id) },
	}

	results := make([]domain.ChunkResult, 0, len(chunks))
	for res := range m.executor.Stream(ctx, req) {
		results = append(results, res)
		m.index.AddResult(j.id, res)

		chunk := res
		j.publish(domain.StreamEvent{
			Type:      domain.EventChunk,
			Chunk:     &chunk,
			Timestamp: time.Now(),
		})
	}

	_ = m.progress.SetStage(j.id, domain.StageAssembling)
	doc := pipeline.Assemble(req, results, started)
	if m.progress.CancelRequested(j.id) && len(results) == 0 {
		doc.Status = domain.JobStatusCancelled
	}

	_ = m.progress.SetStatus(j.id, doc.Status)
	j.finish(doc, nil)

	logger.Info().
		Str("status", string(doc.Status)).
		Int("failed_chunks", doc.FailedChunks).
		Int("cached_chunks", doc.CachedChunks).
		Dur("duration", doc.Duration).
		Msg("job finished")
}

func (m *Manager) finishCancelled(j *job, started time.Time) {
	now := time.Now()
	_ = m.progress.SetStatus(j.id, domain.JobStatusCancelled)
	j.finish(&domain.DocumentResult{
		JobID:       j.id,
		SourceRef:   j.sourceRef,
		Status:      domain.JobStatusCancelled,
		Chunks:      []domain.ChunkResult{},
		StartedAt:   started,
		CompletedAt: now,
		Duration:    now.Sub(started),
	}, nil)
}

func (m *Manager) failJob(j *job, err error, logger *observability.Logger) {
	logger.Error().Err(err).Msg("job failed")
	_ = m.progress.RecordError(j.id, err.Error())
	_ = m.progress.SetStatus(j.id, domain.JobStatusFailed)
	j.finish(nil, err)
}
