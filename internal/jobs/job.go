package jobs

import (
	"sync"
	"time"

	"github.com/landrecords/rag-engine/internal/domain"
)

type jobState int

const (
	stateQueued jobState = iota
	stateRunning
	stateDone
)

// job is the manager's view of one submission. Events are kept for the
// job's lifetime so late subscribers can replay them.
type job struct {
	id        string
	sourceRef string
	opts      domain.Options
	submitted time.Time
	finished  chan struct{}

	mu      sync.Mutex
	state   jobState
	history []domain.StreamEvent
	updated chan struct{}
	result  *domain.DocumentResult
	err     error
}

func newJob(id, sourceRef string, opts domain.Options) *job {
	return &job{
		id:        id,
		sourceRef: sourceRef,
		opts:      opts,
		submitted: time.Now(),
		finished:  make(chan struct{}),
		updated:   make(chan struct{}),
	}
}

// claim takes a job out of the queued state. Only the first caller wins:
// either a runner starting it or a cancellation finishing it.
func (j *job) claim() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != stateQueued {
		return false
	}
	j.state = stateRunning
	return true
}

// publish appends an event and wakes subscribers.
func (j *job) publish(ev domain.StreamEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLocked(ev)
}

func (j *job) appendLocked(ev domain.StreamEvent) {
	j.history = append(j.history, ev)
	close(j.updated)
	j.updated = make(chan struct{})
}

// finish records the outcome and emits the final event.
func (j *job) finish(result *domain.DocumentResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state == stateDone {
		return
	}
	j.state = stateDone
	j.result = result
	j.err = err

	final := domain.StreamEvent{Type: domain.EventComplete, Timestamp: time.Now()}
	if err != nil {
		final.Type = domain.EventError
		final.Status = domain.JobStatusFailed
		final.Error = err.Error()
	} else if result != nil {
		final.Status = result.Status
	}
	j.appendLocked(final)
	close(j.finished)
}

// since returns the events after index from, the channel closed by the next
// publish, and whether the job is done with every event already included.
func (j *job) since(from int) ([]domain.StreamEvent, <-chan struct{}, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var events []domain.StreamEvent
	if from < len(j.history) {
		events = append(events, j.history[from:]...)
	}
	return events, j.updated, j.state == stateDone
}

func (j *job) outcome() (*domain.DocumentResult, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.state == stateDone, j.err
}
