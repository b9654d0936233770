// Package jobs tracks generation requests through their lifecycle.
package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

// Job statuses. Completed and Failed are terminal.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrInvalidTransition is returned when a mutation does not fit the job's current status.
var ErrInvalidTransition = fmt.Errorf("%w: invalid job transition", core.ErrInvalidState)

var (
	errEmptyResult = errors.New("completed job requires a result reference")
	errEmptyReason = errors.New("failed job requires an error message")
)

// Job is a snapshot of one tracked generation request.
type Job struct {
	ID          string                    `json:"id"`
	Status      Status                    `json:"status"`
	Params      core.GenerationParameters `json:"params"`
	Progress    float64                   `json:"progress"`
	ResultRef   string                    `json:"result_ref,omitempty"`
	Error       string                    `json:"error,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	CompletedAt time.Time                 `json:"completed_at"`
}

// Counts is the number of jobs per status.
type Counts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Registry is an in-memory job table. Readers receive copies and never hold the lock
// beyond a map access.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock creates an empty registry that reads time from now.
func NewRegistryWithClock(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}

	return &Registry{
		mu:   sync.RWMutex{},
		jobs: make(map[string]*Job),
		now:  now,
	}
}

// Create registers a Pending job and returns its id.
func (r *Registry) Create(params core.GenerationParameters) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.jobs[id] = &Job{
		ID:          id,
		Status:      StatusPending,
		Params:      params,
		Progress:    0,
		ResultRef:   "",
		Error:       "",
		CreatedAt:   r.now(),
		CompletedAt: time.Time{},
	}

	return id
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}

	return *job, nil
}

// Start moves a Pending job to Processing.
func (r *Registry) Start(id string) error {
	return r.mutate(id, func(job *Job) error {
		if job.Status != StatusPending {
			return fmt.Errorf("%w: cannot start a %s job", ErrInvalidTransition, job.Status)
		}

		job.Status = StatusProcessing

		return nil
	})
}

// UpdateProgress raises the progress of a Processing job. Values are clamped to [0, 1];
// updates lower than the current progress are ignored.
func (r *Registry) UpdateProgress(id string, value float64) error {
	return r.mutate(id, func(job *Job) error {
		if job.Status != StatusProcessing {
			return fmt.Errorf("%w: cannot update progress of a %s job", ErrInvalidTransition, job.Status)
		}

		value = min(max(value, 0), 1)
		if value > job.Progress {
			job.Progress = value
		}

		return nil
	})
}

// Complete marks a Processing job Completed with its result reference.
func (r *Registry) Complete(id, resultRef string) error {
	if resultRef == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, errEmptyResult)
	}

	return r.mutate(id, func(job *Job) error {
		if job.Status != StatusProcessing {
			return fmt.Errorf("%w: cannot complete a %s job", ErrInvalidTransition, job.Status)
		}

		job.Status = StatusCompleted
		job.Progress = 1
		job.ResultRef = resultRef
		job.CompletedAt = r.now()

		return nil
	})
}

// Fail marks a Processing job Failed with a message.
func (r *Registry) Fail(id, message string) error {
	if message == "" {
		return fmt.Errorf("%w: %w", core.ErrValidation, errEmptyReason)
	}

	return r.mutate(id, func(job *Job) error {
		if job.Status != StatusProcessing {
			return fmt.Errorf("%w: cannot fail a %s job", ErrInvalidTransition, job.Status)
		}

		job.Status = StatusFailed
		job.Error = message
		job.CompletedAt = r.now()

		return nil
	})
}

// Reclaim removes terminal jobs created more than maxAge ago and returns them so that
// their artifacts can be deleted. Pending and Processing jobs are never reclaimed.
func (r *Registry) Reclaim(maxAge time.Duration) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)

	var removed []Job

	for id, job := range r.jobs {
		if !job.Status.IsTerminal() || !job.CreatedAt.Before(cutoff) {
			continue
		}

		removed = append(removed, *job)
		delete(r.jobs, id)
	}

	return removed
}

// Counts returns the number of jobs per status.
func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts Counts

	for _, job := range r.jobs {
		switch job.Status {
		case StatusPending:
			counts.Pending++
		case StatusProcessing:
			counts.Processing++
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
		}
	}

	return counts
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.jobs)
}

func (r *Registry) mutate(id string, apply func(job *Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, core.ErrNotFound)
	}

	return apply(job)
}
