package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/metrics"
	"github.com/book-expert/tts-orchestrator/internal/tts"
	"github.com/dustin/go-humanize"
)

const (
	filenameTimeLayout = "20060102_150405"
	historyTimeLayout  = time.RFC3339
	// historyTextLimit is the number of characters of the input kept in a history record.
	historyTextLimit = 500
	// normalizedLanguage is the language whose text goes through the normalizer.
	normalizedLanguage = "tr"
)

// run executes one job on its own goroutine. Every outcome, including a panic, ends in a
// terminal state.
func (s *Service) run(id string, params core.GenerationParameters, done chan struct{}) {
	finished := metrics.JobStarted()

	defer func() {
		if recovered := recover(); recovered != nil {
			s.finish(id, "", fmt.Errorf("unexpected error: %v", recovered))
		}

		s.removeReference(params)
		finished()

		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()
		close(done)
		s.running.Done()
	}()

	startErr := s.registry.Start(id)
	if startErr != nil {
		s.finish(id, "", startErr)

		return
	}

	resultRef, err := s.execute(s.ctx, id, params)
	s.finish(id, resultRef, err)
}

func (s *Service) finish(id, resultRef string, err error) {
	if err != nil {
		metrics.IncJob("failed")

		failErr := s.registry.Fail(id, err.Error())
		s.logf(func(log *logger.Logger) {
			log.Error("Job %s failed: %v", id, err)

			if failErr != nil {
				log.Warn("Could not record failure of job %s: %v", id, failErr)
			}
		})

		return
	}

	completeErr := s.registry.Complete(id, resultRef)
	if completeErr != nil {
		s.finish(id, "", completeErr)

		return
	}

	metrics.IncJob("completed")
}

func (s *Service) execute(ctx context.Context, id string, params core.GenerationParameters) (string, error) {
	started := s.now()

	synth, release, err := s.resources.GetOrCreate(ctx, s.cfg.ResourceKey, s.loader)
	if err != nil {
		return "", fmt.Errorf("failed to acquire synthesis resource: %w", err)
	}
	defer release()

	input := params.Text
	if params.Language == normalizedLanguage && s.normalizer != nil {
		input = s.normalizer.Normalize(input)
	}

	chunks := tts.PlanChunks(input, s.cfg.MaxChunkChars, params.Seed)
	s.logf(func(log *logger.Logger) {
		log.Info("Job %s: %d characters planned into %d chunks", id, len([]rune(input)), len(chunks))
	})

	base := core.SynthesisRequest{
		Text:               "",
		Language:           params.Language,
		ReferenceAudioPath: params.ReferenceAudioPath,
		Exaggeration:       params.Exaggeration,
		CFGWeight:          params.CFGWeight,
		Seed:               params.Seed,
	}

	segments, report, err := s.generator.GenerateAll(ctx, synth, chunks, base, func(done, total int) {
		s.progress(id, ChunkProgressShare*float64(done)/float64(total))
	})
	if err != nil {
		return "", fmt.Errorf("generation interrupted: %w", err)
	}

	wav, err := s.assemble(segments)
	if err != nil {
		return "", err
	}

	s.progress(id, assembledProgress)

	filename, err := s.persist(ctx, id, params, wav)
	if err != nil {
		return "", err
	}

	s.logf(func(log *logger.Logger) {
		log.Info("Job %s completed in %s: %s (%s), %d chunks, %d attempts, %d fallbacks",
			id, s.now().Sub(started).Round(time.Millisecond), filename, humanize.Bytes(uint64(len(wav))),
			report.Chunks, report.Attempts, report.Fallbacks)
	})

	return filename, nil
}

// assemble merges the chunk segments, runs the filter chain and encodes the result.
func (s *Service) assemble(segments []core.Segment) ([]byte, error) {
	merged, err := audio.Merge(segments, s.cfg.Merge)
	if err != nil {
		return nil, fmt.Errorf("failed to merge audio: %w", err)
	}

	processed, err := s.cfg.Filters.Process(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to process audio: %w", err)
	}

	wav, err := audio.EncodeWAV(processed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audio: %w", err)
	}

	return wav, nil
}

// persist uploads the artifact and appends the history record. A history failure removes
// the uploaded artifact.
func (s *Service) persist(ctx context.Context, id string, params core.GenerationParameters, wav []byte) (string, error) {
	now := s.now()
	filename := fmt.Sprintf("tts_%s_%s.wav", now.Format(filenameTimeLayout), id)

	uploadErr := s.store.Upload(ctx, filename, wav)
	if uploadErr != nil {
		return "", fmt.Errorf("%w: failed to store %s: %w", core.ErrStorage, filename, uploadErr)
	}

	s.progress(id, persistedProgress)

	historyErr := s.history.Add(ctx, core.HistoryRecord{
		Timestamp:    now.Format(historyTimeLayout),
		Text:         truncateRunes(params.Text, historyTextLimit),
		Language:     params.Language,
		Seed:         params.Seed,
		Exaggeration: params.Exaggeration,
		CFGWeight:    params.CFGWeight,
		Filename:     filename,
	})
	if historyErr != nil {
		deleteErr := s.store.Delete(ctx, filename)
		if deleteErr != nil {
			s.logf(func(log *logger.Logger) {
				log.Warn("Failed to remove orphaned artifact %s: %v", filename, deleteErr)
			})
		}

		return "", fmt.Errorf("%w: failed to record history for %s: %w", core.ErrStorage, filename, historyErr)
	}

	return filename, nil
}

func (s *Service) progress(id string, value float64) {
	err := s.registry.UpdateProgress(id, value)
	if err != nil {
		s.logf(func(log *logger.Logger) {
			log.Warn("Failed to update progress of job %s: %v", id, err)
		})
	}
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}
