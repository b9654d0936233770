package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/metrics"
	"github.com/robfig/cron/v3"
)

// ArtifactRemover deletes the stored result of a reclaimed job.
type ArtifactRemover func(ctx context.Context, job Job) error

// Sweeper periodically reclaims old terminal jobs from a Registry.
type Sweeper struct {
	registry  *Registry
	retention time.Duration
	remove    ArtifactRemover
	log       *logger.Logger
	cron      *cron.Cron
}

// NewSweeper schedules Reclaim(retention) every interval. remove may be nil.
func NewSweeper(
	registry *Registry,
	retention, interval time.Duration,
	remove ArtifactRemover,
	log *logger.Logger,
) (*Sweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	s := &Sweeper{
		registry:  registry,
		retention: retention,
		remove:    remove,
		log:       log,
		cron:      cron.New(),
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.Sweep(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule job reclamation: %w", err)
	}

	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one reclamation pass and returns the number of removed jobs.
func (s *Sweeper) Sweep(ctx context.Context) int {
	removed := s.registry.Reclaim(s.retention)

	for _, job := range removed {
		if s.remove == nil || job.ResultRef == "" {
			continue
		}

		err := s.remove(ctx, job)
		if err != nil && s.log != nil {
			s.log.Warn("Failed to delete artifact %s of reclaimed job %s: %v", job.ResultRef, job.ID, err)
		}
	}

	metrics.AddReclaimedJobs(len(removed))

	if len(removed) > 0 && s.log != nil {
		s.log.System("Reclaimed %d jobs older than %s", len(removed), s.retention)
	}

	return len(removed)
}
