package tts_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeRate = 24000

var errFlaky = errors.New("device busy")

// fakeSynth records every call. failSeeds makes the call with that seed fail; panicSeeds
// makes it panic.
type fakeSynth struct {
	mu         sync.Mutex
	seeds      []int64
	texts      []string
	failSeeds  map[int64]bool
	panicSeeds map[int64]bool
	emptySeeds map[int64]bool
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	delay      time.Duration
}

func (f *fakeSynth) Generate(ctx context.Context, req core.SynthesisRequest) (core.Segment, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		peak := f.maxFlight.Load()
		if current <= peak || f.maxFlight.CompareAndSwap(peak, current) {
			break
		}
	}

	f.mu.Lock()
	f.seeds = append(f.seeds, req.Seed)
	f.texts = append(f.texts, req.Text)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return core.Segment{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	switch {
	case f.panicSeeds[req.Seed]:
		panic("kernel exploded")
	case f.failSeeds[req.Seed]:
		return core.Segment{}, errFlaky
	case f.emptySeeds[req.Seed]:
		return core.Segment{Samples: nil, SampleRate: fakeRate}, nil
	}

	return core.Segment{Samples: []float64{0.1, 0.2, 0.3}, SampleRate: fakeRate}, nil
}

func (f *fakeSynth) SampleRate() int { return fakeRate }

func (f *fakeSynth) Close() error { return nil }

func (f *fakeSynth) recordedSeeds() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int64(nil), f.seeds...)
}

func TestPlanChunks_DerivesSeeds(t *testing.T) {
	t.Parallel()

	chunks := tts.PlanChunks("Birinci cümle. İkinci cümle. Üçüncü cümle.", 16, 42)
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, int64(42+i), chunk.Seed)
	}

	assert.Equal(t, "İkinci cümle.", chunks[1].Text)
}

func TestGenerateAll_SucceedsFirstTry(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{}
	gen := tts.NewGenerator(tts.NewDefaultGeneratorConfig(), nil)
	chunks := []tts.Chunk{{Index: 0, Text: "a", Seed: 10}, {Index: 1, Text: "b", Seed: 11}}

	var progress [][2]int

	segments, report, err := gen.GenerateAll(context.Background(), synth, chunks,
		core.SynthesisRequest{Language: "en", Exaggeration: 0.5, CFGWeight: 0.5},
		func(done, total int) { progress = append(progress, [2]int{done, total}) })
	require.NoError(t, err)

	assert.Len(t, segments, 2)
	assert.Equal(t, tts.Report{Chunks: 2, Attempts: 2, Fallbacks: 0}, report)
	assert.Equal(t, []int64{10, 11}, synth.recordedSeeds())
	assert.Equal(t, []string{"a", "b"}, synth.texts)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
}

func TestGenerateAll_RetriesWithOffsetSeeds(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{failSeeds: map[int64]bool{5: true, 105: true}}
	gen := tts.NewGenerator(tts.NewDefaultGeneratorConfig(), createTestLogger(t))

	segments, report, err := gen.GenerateAll(context.Background(), synth,
		[]tts.Chunk{{Index: 0, Text: "a", Seed: 5}}, core.SynthesisRequest{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int64{5, 105, 205}, synth.recordedSeeds())
	assert.Equal(t, 3, report.Attempts)
	assert.Zero(t, report.Fallbacks)
	assert.Len(t, segments[0].Samples, 3)
}

func TestGenerateAll_FallsBackToSilence(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{
		failSeeds:  map[int64]bool{7: true},
		panicSeeds: map[int64]bool{107: true},
		emptySeeds: map[int64]bool{207: true},
	}
	gen := tts.NewGenerator(tts.NewDefaultGeneratorConfig(), createTestLogger(t))
	chunks := []tts.Chunk{{Index: 0, Text: "ok", Seed: 6}, {Index: 1, Text: "bad", Seed: 7}, {Index: 2, Text: "ok", Seed: 8}}

	segments, report, err := gen.GenerateAll(context.Background(), synth, chunks, core.SynthesisRequest{}, nil)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	silence := segments[1]
	assert.Equal(t, fakeRate, silence.SampleRate)
	assert.Len(t, silence.Samples, fakeRate/2)

	for _, sample := range silence.Samples {
		require.Zero(t, sample)
	}

	assert.Equal(t, 1, report.Fallbacks)
	assert.Equal(t, 5, report.Attempts)
	assert.Equal(t, []int64{6, 7, 107, 207, 8}, synth.recordedSeeds())
}

func TestGenerateAll_CustomPolicy(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{failSeeds: map[int64]bool{0: true, 10: true}}
	gen := tts.NewGenerator(tts.GeneratorConfig{
		MaxAttempts:      2,
		SeedStride:       10,
		FallbackDuration: 100 * time.Millisecond,
		Concurrency:      1,
	}, nil)

	segments, report, err := gen.GenerateAll(context.Background(), synth,
		[]tts.Chunk{{Index: 0, Text: "x", Seed: 0}}, core.SynthesisRequest{}, nil)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 10}, synth.recordedSeeds())
	assert.Len(t, segments[0].Samples, fakeRate/10)
	assert.Equal(t, 1, report.Fallbacks)
}

func TestGenerateAll_StopsOnCancel(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{delay: time.Second}
	gen := tts.NewGenerator(tts.NewDefaultGeneratorConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := gen.GenerateAll(ctx, synth,
		[]tts.Chunk{{Index: 0, Text: "a", Seed: 1}, {Index: 1, Text: "b", Seed: 2}}, core.SynthesisRequest{}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, synth.recordedSeeds(), 1)
}

func TestGenerateAll_SerializesAcrossJobs(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{delay: 5 * time.Millisecond}
	gen := tts.NewGenerator(tts.NewDefaultGeneratorConfig(), nil)

	var wg sync.WaitGroup

	for job := range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			chunks := tts.PlanChunks("Bir. İki. Üç.", 4, int64(job*1000))
			_, _, err := gen.GenerateAll(context.Background(), synth, chunks, core.SynthesisRequest{}, nil)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Len(t, synth.recordedSeeds(), 12)
	assert.Equal(t, int32(1), synth.maxFlight.Load())
}
