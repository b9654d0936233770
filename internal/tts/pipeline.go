// Package tts drives the synthesis resource: chunk planning with derived seeds, bounded
// per-chunk retries with a silent fallback, and the synthesis backends themselves.
package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/metrics"
	"github.com/book-expert/tts-orchestrator/internal/tts/text"
	"golang.org/x/sync/semaphore"
)

// Retry defaults.
const (
	DefaultMaxAttempts      = 3
	DefaultSeedStride       = 100
	DefaultFallbackDuration = 500 * time.Millisecond
	DefaultConcurrency      = 1
)

// Log formats.
const (
	logFmtAttemptFailed = "Chunk %d/%d attempt %d/%d (seed %d) failed: %v"
	logFmtChunkFallback = "Chunk %d/%d failed after %d attempts, using %s of silence"
	logFmtChunkDone     = "Chunk %d/%d generated (%s, %d attempts)"
)

// errEmptyAudio marks a synthesis call that returned no samples.
var errEmptyAudio = fmt.Errorf("%w: synthesis returned no audio", core.ErrGeneration)

// Chunk is one generation unit: its position, its text and the seed derived from the
// job's base seed.
type Chunk struct {
	Index int
	Text  string
	Seed  int64
}

// PlanChunks splits text into chunks and assigns seed baseSeed+index to each.
func PlanChunks(input string, maxChars int, baseSeed int64) []Chunk {
	parts := text.SplitIntoChunks(input, maxChars)
	chunks := make([]Chunk, len(parts))

	for i, part := range parts {
		chunks[i] = Chunk{Index: i, Text: part, Seed: baseSeed + int64(i)}
	}

	return chunks
}

// GeneratorConfig bounds the retry policy.
type GeneratorConfig struct {
	MaxAttempts      int
	SeedStride       int64
	FallbackDuration time.Duration
	// Concurrency is the number of synthesis calls allowed in flight across all jobs.
	Concurrency int64
}

// NewDefaultGeneratorConfig returns 3 attempts, a seed stride of 100, 0.5s of fallback
// silence and serialized synthesis.
func NewDefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxAttempts:      DefaultMaxAttempts,
		SeedStride:       DefaultSeedStride,
		FallbackDuration: DefaultFallbackDuration,
		Concurrency:      DefaultConcurrency,
	}
}

// ProgressFunc is called after every chunk with the number of finished chunks.
type ProgressFunc func(done, total int)

// Report summarizes one GenerateAll run.
type Report struct {
	Chunks    int
	Attempts  int
	Fallbacks int
}

// Generator runs chunks through a Synthesizer. One Generator is shared by all jobs; its gate
// serializes calls into the resource.
type Generator struct {
	cfg  GeneratorConfig
	gate *semaphore.Weighted
	log  *logger.Logger
}

// NewGenerator creates a Generator. Non-positive settings fall back to the defaults.
func NewGenerator(cfg GeneratorConfig, log *logger.Logger) *Generator {
	defaults := NewDefaultGeneratorConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}

	if cfg.SeedStride <= 0 {
		cfg.SeedStride = defaults.SeedStride
	}

	if cfg.FallbackDuration <= 0 {
		cfg.FallbackDuration = defaults.FallbackDuration
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}

	return &Generator{
		cfg:  cfg,
		gate: semaphore.NewWeighted(cfg.Concurrency),
		log:  log,
	}
}

// GenerateAll produces one segment per chunk, in chunk order. Chunk failures never surface
// here: a chunk that fails every attempt becomes silence. The only error is the context's.
func (g *Generator) GenerateAll(
	ctx context.Context,
	synth core.Synthesizer,
	chunks []Chunk,
	base core.SynthesisRequest,
	onProgress ProgressFunc,
) ([]core.Segment, Report, error) {
	segments := make([]core.Segment, 0, len(chunks))
	report := Report{Chunks: len(chunks), Attempts: 0, Fallbacks: 0}

	for done, chunk := range chunks {
		seg, attempts, err := g.generateChunk(ctx, synth, chunk, len(chunks), base)
		report.Attempts += attempts

		if err != nil {
			return nil, report, err
		}

		if seg.fallback {
			report.Fallbacks++
		}

		segments = append(segments, seg.Segment)

		if onProgress != nil {
			onProgress(done+1, len(chunks))
		}
	}

	return segments, report, nil
}

type chunkSegment struct {
	core.Segment

	fallback bool
}

func (g *Generator) generateChunk(
	ctx context.Context,
	synth core.Synthesizer,
	chunk Chunk,
	total int,
	base core.SynthesisRequest,
) (chunkSegment, int, error) {
	req := base
	req.Text = chunk.Text

	for attempt := range g.cfg.MaxAttempts {
		req.Seed = chunk.Seed + int64(attempt)*g.cfg.SeedStride

		seg, err := g.invoke(ctx, synth, req)
		if err == nil {
			metrics.ObserveChunk(attempt+1, false)
			g.logf(func(log *logger.Logger) {
				log.Info(logFmtChunkDone, chunk.Index+1, total, seg.Duration(), attempt+1)
			})

			return chunkSegment{Segment: seg, fallback: false}, attempt + 1, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return chunkSegment{}, attempt + 1, fmt.Errorf("chunk %d interrupted: %w", chunk.Index, ctxErr)
		}

		g.logf(func(log *logger.Logger) {
			log.Warn(logFmtAttemptFailed, chunk.Index+1, total, attempt+1, g.cfg.MaxAttempts, req.Seed, err)
		})
	}

	metrics.ObserveChunk(g.cfg.MaxAttempts, true)
	g.logf(func(log *logger.Logger) {
		log.Error(logFmtChunkFallback, chunk.Index+1, total, g.cfg.MaxAttempts, g.cfg.FallbackDuration)
	})

	return chunkSegment{
		Segment:  audio.Silence(g.cfg.FallbackDuration, synth.SampleRate()),
		fallback: true,
	}, g.cfg.MaxAttempts, nil
}

// invoke holds the gate for exactly one synthesis call, so the seed and the generation it
// applies to are never interleaved with another job's call.
func (g *Generator) invoke(ctx context.Context, synth core.Synthesizer, req core.SynthesisRequest) (seg core.Segment, err error) {
	acquireErr := g.gate.Acquire(ctx, 1)
	if acquireErr != nil {
		return core.Segment{}, fmt.Errorf("failed to acquire synthesis slot: %w", acquireErr)
	}
	defer g.gate.Release(1)

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: synthesis panicked: %v", core.ErrGeneration, recovered)
		}
	}()

	seg, err = synth.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, core.ErrGeneration) {
			return core.Segment{}, err
		}

		return core.Segment{}, fmt.Errorf("%w: %w", core.ErrGeneration, err)
	}

	if len(seg.Samples) == 0 {
		return core.Segment{}, errEmptyAudio
	}

	return seg, nil
}

func (g *Generator) logf(write func(log *logger.Logger)) {
	if g.log != nil {
		write(g.log)
	}
}
