package orchestrator

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/cache"
	"github.com/book-expert/tts-orchestrator/internal/catalog"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/jobs"
	"github.com/book-expert/tts-orchestrator/internal/metrics"
)

// SubmitResult is returned by Submit.
type SubmitResult struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

// StatusResult is the externally visible state of a job. Progress is a percentage with one
// decimal.
type StatusResult struct {
	JobID       string      `json:"job_id"`
	Status      jobs.Status `json:"status"`
	Progress    float64     `json:"progress"`
	DownloadRef string      `json:"download_ref,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Artifact is a downloadable result.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// HealthReport describes the resource and the job table.
type HealthReport struct {
	ResourceLoaded  bool               `json:"resource_loaded"`
	Resource        *cache.EntryStatus `json:"resource,omitempty"`
	PendingCount    int                `json:"pending_count"`
	ProcessingCount int                `json:"processing_count"`
	CompletedCount  int                `json:"completed_count"`
	FailedCount     int                `json:"failed_count"`
}

// Submit validates params, resolves the language, preset and seed, and starts the job in the
// background. It never waits for generation. When params own their reference audio, the
// Service removes the file once the job ends or the submission is rejected.
func (s *Service) Submit(_ context.Context, params core.GenerationParameters) (SubmitResult, error) {
	resolved, err := s.resolve(params)
	if err != nil {
		s.removeReference(params)

		return SubmitResult{}, err
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.removeReference(params)

		return SubmitResult{}, errShuttingDown
	}

	id := s.registry.Create(resolved)
	done := make(chan struct{})
	s.waiters[id] = done
	s.running.Add(1)
	s.mu.Unlock()

	metrics.IncJob("submitted")
	s.logf(func(log *logger.Logger) {
		log.Info("Job %s submitted: %d characters, language %s, seed %d",
			id, len([]rune(resolved.Text)), resolved.Language, resolved.Seed)
	})

	go s.run(id, resolved, done)

	return SubmitResult{JobID: id, Status: jobs.StatusPending}, nil
}

func (s *Service) resolve(params core.GenerationParameters) (core.GenerationParameters, error) {
	validationErr := params.Validate(s.cfg.MaxTextLength)
	if validationErr != nil {
		return params, validationErr
	}

	if params.Preset != "" {
		preset, ok := catalog.LookupPreset(params.Preset)
		if ok {
			params.Exaggeration = preset.Exaggeration
			params.CFGWeight = preset.CFGWeight
		} else {
			s.logf(func(log *logger.Logger) {
				log.Warn("Unknown preset '%s', keeping explicit weights", params.Preset)
			})
		}
	}

	if params.Language == catalog.AutoLanguage {
		params.Language = catalog.DetectLanguage(params.Text, s.cfg.DefaultLanguage)
	} else {
		params.Language = catalog.ResolveLanguage(params.Language, s.cfg.DefaultLanguage)
	}

	if params.Seed == core.RandomSeed {
		params.Seed = s.seeds()
	}

	if params.ReferenceAudioPath != "" {
		_, statErr := os.Stat(params.ReferenceAudioPath)
		if statErr != nil {
			return params, fmt.Errorf("%w: reference audio: %w", core.ErrValidation, statErr)
		}
	}

	return params, nil
}

// Status reports a job's state.
func (s *Service) Status(id string) (StatusResult, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return StatusResult{}, err
	}

	return statusOf(job), nil
}

func statusOf(job jobs.Job) StatusResult {
	result := StatusResult{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    math.Round(job.Progress*1000) / 10,
		DownloadRef: "",
		Error:       "",
	}

	switch job.Status {
	case jobs.StatusCompleted:
		result.DownloadRef = job.ResultRef
	case jobs.StatusFailed:
		result.Error = job.Error
	case jobs.StatusPending, jobs.StatusProcessing:
	}

	return result
}

// Wait blocks until the job reaches a terminal state or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (StatusResult, error) {
	s.mu.Lock()
	done, ok := s.waiters[id]
	s.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return StatusResult{}, fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		}
	}

	return s.Status(id)
}

// Download returns the audio of a Completed job.
func (s *Service) Download(ctx context.Context, id string) (Artifact, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return Artifact{}, err
	}

	if job.Status != jobs.StatusCompleted {
		return Artifact{}, fmt.Errorf("%w: job %s is %s", core.ErrInvalidState, id, job.Status)
	}

	data, err := s.store.Download(ctx, job.ResultRef)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to download result of job %s: %w", id, err)
	}

	return Artifact{Filename: job.ResultRef, ContentType: audio.WAV_CONTENT_TYPE, Data: data}, nil
}

// Health reports whether the resource is loaded and how many jobs are in each state.
func (s *Service) Health() HealthReport {
	counts := s.registry.Counts()
	report := HealthReport{
		ResourceLoaded:  false,
		Resource:        nil,
		PendingCount:    counts.Pending,
		ProcessingCount: counts.Processing,
		CompletedCount:  counts.Completed,
		FailedCount:     counts.Failed,
	}

	if status, ok := s.resources.Status()[s.cfg.ResourceKey]; ok {
		report.ResourceLoaded = true
		report.Resource = &status
	}

	return report
}

// Unload releases the synthesis resource now. A job holding it keeps using it until it ends.
func (s *Service) Unload() bool {
	loaded := s.resources.Has(s.cfg.ResourceKey)
	s.resources.Clear(s.cfg.ResourceKey)

	if loaded {
		metrics.IncResourceEviction()
		s.logf(func(log *logger.Logger) {
			log.System("Synthesis resource '%s' unloaded on request", s.cfg.ResourceKey)
		})
	}

	return loaded
}

// History lists the most recent generations.
func (s *Service) History(ctx context.Context, limit int) ([]core.HistoryRecord, error) {
	records, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}

	return records, nil
}

func (s *Service) removeReference(params core.GenerationParameters) {
	if !params.OwnsReferenceAudio || params.ReferenceAudioPath == "" {
		return
	}

	err := os.Remove(params.ReferenceAudioPath)
	if err != nil && !os.IsNotExist(err) {
		s.logf(func(log *logger.Logger) {
			log.Warn("Failed to remove reference audio '%s': %v", params.ReferenceAudioPath, err)
		})
	}
}
