// Package progress tracks per-job processing state for pollers and
// cancellation checks.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/observability"
)

var (
	// ErrNotFound is returned for unknown or expired job ids.
	ErrNotFound = errors.New("job not found")
	// ErrExists is returned when a job id is created twice.
	ErrExists = errors.New("job already tracked")
)

// maxErrors caps the per-job error list.
const maxErrors = 100

// Record is a point-in-time copy of a job's progress.
type Record struct {
	JobID           string           `json:"job_id"`
	Status          domain.JobStatus `json:"status"`
	TotalPages      int              `json:"total_pages"`
	TotalChunks     int              `json:"total_chunks"`
	CompletedChunks int              `json:"completed_chunks"`
	FailedChunks    int              `json:"failed_chunks"`
	CachedChunks    int              `json:"cached_chunks"`
	CurrentStage    domain.Stage     `json:"current_stage"`
	StartedAt       time.Time        `json:"started_at"`
	LastUpdate      time.Time        `json:"last_update"`
	Errors          []string         `json:"errors"`
	CancelRequested bool             `json:"cancel_requested"`

	ProgressPercent           float64 `json:"progress_percent"`
	ElapsedSeconds            float64 `json:"elapsed_seconds"`
	EstimatedRemainingSeconds float64 `json:"estimated_remaining_seconds"`
}

// Tracker holds progress records for live and recently finished jobs. It is
// safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  *observability.Logger
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(logger *observability.Logger) *Tracker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Tracker{
		records: make(map[string]*Record),
		logger:  logger,
		now:     time.Now,
	}
}

// Create starts tracking a job in the queued state.
func (t *Tracker) Create(jobID string, totalChunks int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.records[jobID]; ok {
		return ErrExists
	}

	now := t.now()
	t.records[jobID] = &Record{
		JobID:        jobID,
		Status:       domain.JobStatusQueued,
		TotalChunks:  totalChunks,
		CurrentStage: domain.StageQueued,
		StartedAt:    now,
		LastUpdate:   now,
		Errors:       []string{},
	}
	return nil
}

// update applies fn to a live record under the write lock.
func (t *Tracker) update(jobID string, fn func(r *Record)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.records[jobID]
	if !ok {
		return ErrNotFound
	}
	fn(r)
	r.LastUpdate = t.now()
	return nil
}

// Advance counts one more finished chunk, failed or not, and records the
// stage it finished in. completed_chunks never exceeds total_chunks.
func (t *Tracker) Advance(jobID string, stage domain.Stage) error {
	return t.update(jobID, func(r *Record) {
		if r.TotalChunks == 0 || r.CompletedChunks < r.TotalChunks {
			r.CompletedChunks++
		}
		if !r.Status.IsTerminal() {
			r.CurrentStage = stage
		}
	})
}

// SetStage records what the job is doing now.
func (t *Tracker) SetStage(jobID string, stage domain.Stage) error {
	return t.update(jobID, func(r *Record) {
		if !r.Status.IsTerminal() {
			r.CurrentStage = stage
		}
	})
}

// SetStatus moves the job to status. Terminal statuses are final: later
// calls are ignored.
func (t *Tracker) SetStatus(jobID string, status domain.JobStatus) error {
	return t.update(jobID, func(r *Record) {
		if r.Status.IsTerminal() {
			return
		}
		r.Status = status
		switch status {
		case domain.JobStatusExtracting:
			r.CurrentStage = domain.StageExtracting
		case domain.JobStatusProcessing:
			r.CurrentStage = domain.StageOCR
		}
		if status.IsTerminal() {
			r.CurrentStage = domain.StageDone
			t.logger.Info().
				Str("job_id", jobID).
				Str("status", string(status)).
				Int("completed_chunks", r.CompletedChunks).
				Int("failed_chunks", r.FailedChunks).
				Msg("job finished")
		}
	})
}

// SetTotals records page and chunk counts once extraction and planning are
// done.
func (t *Tracker) SetTotals(jobID string, totalPages, totalChunks int) error {
	return t.update(jobID, func(r *Record) {
		r.TotalPages = totalPages
		r.TotalChunks = totalChunks
		r.CurrentStage = domain.StagePlanning
	})
}

// RecordFailure counts a failed chunk and keeps its message.
func (t *Tracker) RecordFailure(jobID, chunkID, message string) error {
	return t.update(jobID, func(r *Record) {
		r.FailedChunks++
		if len(r.Errors) < maxErrors {
			r.Errors = append(r.Errors, chunkID+": "+message)
		}
	})
}

// RecordError keeps a job-level error message.
func (t *Tracker) RecordError(jobID, message string) error {
	return t.update(jobID, func(r *Record) {
		if len(r.Errors) < maxErrors {
			r.Errors = append(r.Errors, message)
		}
	})
}

// MarkCached counts a chunk served from the cache.
func (t *Tracker) MarkCached(jobID string) error {
	return t.update(jobID, func(r *Record) {
		r.CachedChunks++
	})
}

// RequestCancel flags the job for cooperative cancellation. It has no effect
// on finished jobs.
func (t *Tracker) RequestCancel(jobID string) error {
	return t.update(jobID, func(r *Record) {
		if !r.Status.IsTerminal() {
			r.CancelRequested = true
		}
	})
}

// CancelRequested reports whether cancellation was requested. Unknown jobs
// report false.
func (t *Tracker) CancelRequested(jobID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[jobID]
	return ok && r.CancelRequested
}

// Get returns a copy of the job's record with derived fields filled in.
func (t *Tracker) Get(jobID string) (Record, error) {
	t.mu.RLock()
	r, ok := t.records[jobID]
	if !ok {
		t.mu.RUnlock()
		return Record{}, ErrNotFound
	}
	rec := *r
	rec.Errors = append([]string{}, r.Errors...)
	t.mu.RUnlock()

	t.derive(&rec)
	return rec, nil
}

func (t *Tracker) derive(r *Record) {
	end := t.now()
	if r.Status.IsTerminal() {
		end = r.LastUpdate
	}
	elapsed := end.Sub(r.StartedAt)
	r.ElapsedSeconds = elapsed.Seconds()

	switch {
	case r.TotalChunks > 0:
		r.ProgressPercent = float64(r.CompletedChunks) / float64(r.TotalChunks) * 100
	case r.Status.IsTerminal():
		r.ProgressPercent = 100
	}

	if r.CompletedChunks > 0 && r.CompletedChunks < r.TotalChunks && !r.Status.IsTerminal() {
		perChunk := elapsed.Seconds() / float64(r.CompletedChunks)
		r.EstimatedRemainingSeconds = perChunk * float64(r.TotalChunks-r.CompletedChunks)
	}
}

// EvictExpired drops finished jobs whose last update is older than
// retention and returns their ids.
func (t *Tracker) EvictExpired(retention time.Duration) []string {
	cutoff := t.now().Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	var evicted []string
	for id, r := range t.records {
		if r.Status.IsTerminal() && r.LastUpdate.Before(cutoff) {
			delete(t.records, id)
			evicted = append(evicted, id)
		}
	}

	if len(evicted) > 0 {
		t.logger.Debug().Int("evicted", len(evicted)).Msg("expired progress records evicted")
	}
	return evicted
}

// Forget drops a record regardless of its status.
func (t *Tracker) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, jobID)
}

// Len returns the number of tracked jobs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Run evicts expired records every interval until ctx is done. onEvict, if
// set, receives the ids removed by each sweep.
func (t *Tracker) Run(ctx context.Context, interval, retention time.Duration, onEvict func([]string)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := t.EvictExpired(retention); len(ids) > 0 && onEvict != nil {
				onEvict(ids)
			}
		}
	}
}
