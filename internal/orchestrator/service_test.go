package orchestrator_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/catalog"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/jobs"
	"github.com/book-expert/tts-orchestrator/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 24000
	testSeed       = 4242
	waitTimeout    = 5 * time.Second
)

var errSynthesis = errors.New("synthesis exploded")

// fakeSynth returns a short tone for every call. Texts containing "FAIL" always fail.
// When gate is set every call blocks until it can receive from it.
type fakeSynth struct {
	mu       sync.Mutex
	requests []core.SynthesisRequest
	gate     chan struct{}
	closed   atomic.Int32
}

func (f *fakeSynth) Generate(ctx context.Context, req core.SynthesisRequest) (core.Segment, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return core.Segment{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if strings.Contains(req.Text, "FAIL") {
		return core.Segment{}, errSynthesis
	}

	samples := make([]float64, testSampleRate/10)
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*440*float64(i)/testSampleRate)
	}

	return core.Segment{Samples: samples, SampleRate: testSampleRate}, nil
}

func (f *fakeSynth) SampleRate() int { return testSampleRate }

func (f *fakeSynth) Close() error {
	f.closed.Add(1)

	return nil
}

func (f *fakeSynth) Requests() []core.SynthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]core.SynthesisRequest, len(f.requests))
	copy(out, f.requests)

	return out
}

type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}

	return data, nil
}

func (m *memStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.uploadErr != nil {
		return m.uploadErr
	}

	m.objects[key] = data

	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)

	return nil
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.objects)
}

type memHistory struct {
	mu      sync.Mutex
	records []core.HistoryRecord
	addErr  error
	panics  atomic.Int32
}

func (h *memHistory) Add(_ context.Context, record core.HistoryRecord) error {
	if h.panics.Add(-1) >= 0 {
		panic("history index corrupted")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.addErr != nil {
		return h.addErr
	}

	h.records = append(h.records, record)

	return nil
}

func (h *memHistory) List(_ context.Context, limit int) ([]core.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]core.HistoryRecord, 0, len(h.records))
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}

	return out, nil
}

func (h *memHistory) GetByFilename(_ context.Context, filename string) (*core.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, record := range h.records {
		if record.Filename == filename {
			return &record, nil
		}
	}

	return nil, core.ErrNotFound
}

func (h *memHistory) Records() []core.HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]core.HistoryRecord(nil), h.records...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc     *orchestrator.Service
	synth   *fakeSynth
	store   *memStore
	history *memHistory
	loads   *atomic.Int32
	clock   *fakeClock
}

type harnessOption func(deps *orchestrator.Dependencies, h *harness)

func withLoadError(err error) harnessOption {
	return func(deps *orchestrator.Dependencies, h *harness) {
		deps.Loader = func(context.Context) (core.Synthesizer, error) {
			h.loads.Add(1)

			return nil, err
		}
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		synth:   &fakeSynth{},
		store:   newMemStore(),
		history: &memHistory{},
		loads:   &atomic.Int32{},
		clock:   &fakeClock{now: time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)},
	}

	deps := orchestrator.Dependencies{
		Loader: func(context.Context) (core.Synthesizer, error) {
			h.loads.Add(1)

			return h.synth, nil
		},
		Store:   h.store,
		History: h.history,
		Now:     h.clock.Now,
		Seeds:   func() int64 { return testSeed },
	}

	for _, opt := range opts {
		opt(&deps, h)
	}

	svc, err := orchestrator.New(orchestrator.DefaultConfig(), deps)
	require.NoError(t, err)

	h.svc = svc
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()

		_ = svc.Shutdown(ctx)
	})

	return h
}

func params(text, language string, seed int64) core.GenerationParameters {
	p := core.NewGenerationParameters(text)
	p.Language = language
	p.Seed = seed

	return p
}

func (h *harness) submitAndWait(t *testing.T, p core.GenerationParameters) orchestrator.StatusResult {
	t.Helper()

	submitted, err := h.svc.Submit(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, submitted.Status)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	status, err := h.svc.Wait(ctx, submitted.JobID)
	require.NoError(t, err)

	return status
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Dependencies{})
	require.Error(t, err)

	cfg := orchestrator.DefaultConfig()
	cfg.Filters.HighPass = -1
	_, err = orchestrator.New(cfg, orchestrator.Dependencies{
		Loader:  func(context.Context) (core.Synthesizer, error) { return &fakeSynth{}, nil },
		Store:   newMemStore(),
		History: &memHistory{},
	})
	require.Error(t, err)
}

func TestSubmit_ShortTextCompletes(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("Hello there.", "en", 7))

	require.Equal(t, jobs.StatusCompleted, status.Status, status.Error)
	assert.InDelta(t, 100.0, status.Progress, 0.001)
	assert.Equal(t, fmt.Sprintf("tts_20250314_092653_%s.wav", status.JobID), status.DownloadRef)
	assert.Empty(t, status.Error)

	requests := h.synth.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "Hello there.", requests[0].Text)
	assert.Equal(t, int64(7), requests[0].Seed)
	assert.Equal(t, "en", requests[0].Language)

	artifact, err := h.svc.Download(context.Background(), status.JobID)
	require.NoError(t, err)
	assert.Equal(t, status.DownloadRef, artifact.Filename)
	assert.Equal(t, "audio/wav", artifact.ContentType)
	assert.True(t, bytes.HasPrefix(artifact.Data, []byte("RIFF")))

	records := h.history.Records()
	require.Len(t, records, 1)
	assert.Equal(t, status.DownloadRef, records[0].Filename)
	assert.Equal(t, int64(7), records[0].Seed)
	assert.Equal(t, "2025-03-14T09:26:53Z", records[0].Timestamp)
}

func TestSubmit_LongTextIsChunkedInOrder(t *testing.T) {
	t.Parallel()

	sentences := []string{
		"The first sentence talks about the weather that we had during the long and quiet weekend.",
		"The second sentence describes the small village near the river where the old mill stands.",
		"The third sentence ends the story with a short note about the journey back to the city.",
	}

	h := newHarness(t)
	status := h.submitAndWait(t, params(strings.Join(sentences, " "), "en", 10))
	require.Equal(t, jobs.StatusCompleted, status.Status, status.Error)

	requests := h.synth.Requests()
	require.GreaterOrEqual(t, len(requests), 2)

	joined := make([]string, len(requests))
	for i, req := range requests {
		assert.Equal(t, int64(10+i), req.Seed)
		assert.LessOrEqual(t, len([]rune(req.Text)), 200)

		joined[i] = req.Text
	}

	assert.Equal(t, strings.Join(sentences, " "), strings.Join(joined, " "))
}

func TestStatus_UnknownJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, err := h.svc.Status("does-not-exist")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = h.svc.Download(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestSubmit_RejectsInvalidParameters(t *testing.T) {
	t.Parallel()

	tooExpressive := params("Hello.", "en", 1)
	tooExpressive.Exaggeration = 3

	nanExaggeration := params("Hello.", "en", 1)
	nanExaggeration.Exaggeration = math.NaN()

	nanCFGWeight := params("Hello.", "en", 1)
	nanCFGWeight.CFGWeight = math.NaN()

	missingReference := params("Hello.", "en", 1)
	missingReference.ReferenceAudioPath = filepath.Join(t.TempDir(), "missing.wav")

	tests := []struct {
		name   string
		params core.GenerationParameters
	}{
		{name: "empty text", params: params("   ", "en", 1)},
		{name: "too long", params: params(strings.Repeat("a", core.MaxTextLength+1), "en", 1)},
		{name: "exaggeration", params: tooExpressive},
		{name: "exaggeration NaN", params: nanExaggeration},
		{name: "cfg weight NaN", params: nanCFGWeight},
		{name: "reference audio", params: missingReference},
	}

	h := newHarness(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := h.svc.Submit(context.Background(), tt.params)
			require.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestDownload_BeforeCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.synth.gate = make(chan struct{})

	submitted, err := h.svc.Submit(context.Background(), params("Still working.", "en", 1))
	require.NoError(t, err)

	_, err = h.svc.Download(context.Background(), submitted.JobID)
	require.ErrorIs(t, err, core.ErrInvalidState)

	close(h.synth.gate)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	status, err := h.svc.Wait(ctx, submitted.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, status.Status)
}

func TestDownload_MissingArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("Gone soon.", "en", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	require.NoError(t, h.store.Delete(context.Background(), status.DownloadRef))

	_, err := h.svc.Download(context.Background(), status.JobID)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestWait_HonorsContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.synth.gate = make(chan struct{})

	submitted, err := h.svc.Submit(context.Background(), params("Blocked.", "en", 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = h.svc.Wait(ctx, submitted.JobID)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		status, statusErr := h.svc.Status(submitted.JobID)

		return statusErr == nil && status.Status == jobs.StatusProcessing
	}, waitTimeout, time.Millisecond)

	close(h.synth.gate)
}

func TestSubmit_FailingChunkFallsBackToSilence(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("This will FAIL every time.", "en", 3))

	require.Equal(t, jobs.StatusCompleted, status.Status, status.Error)

	requests := h.synth.Requests()
	require.Len(t, requests, 3)
	assert.Equal(t, []int64{3, 103, 203}, []int64{requests[0].Seed, requests[1].Seed, requests[2].Seed})

	artifact, err := h.svc.Download(context.Background(), status.JobID)
	require.NoError(t, err)
	assert.NotEmpty(t, artifact.Data)
}

func TestSubmit_LoaderFailureFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withLoadError(fmt.Errorf("%w: model file missing", core.ErrResourceLoad)))

	for range 2 {
		status := h.submitAndWait(t, params("Anyone there?", "en", 1))
		assert.Equal(t, jobs.StatusFailed, status.Status)
		assert.Contains(t, status.Error, "model file missing")
		assert.Empty(t, status.DownloadRef)
	}

	assert.Equal(t, int32(2), h.loads.Load())
	assert.False(t, h.svc.Health().ResourceLoaded)
	assert.Zero(t, h.store.Len())
}

func TestSubmit_StorageFailureFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.store.uploadErr = errors.New("disk full")

	status := h.submitAndWait(t, params("Nowhere to go.", "en", 1))
	assert.Equal(t, jobs.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "disk full")
	assert.Empty(t, h.history.Records())
}

func TestSubmit_HistoryFailureRemovesArtifact(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.history.addErr = errors.New("database locked")

	status := h.submitAndWait(t, params("Forget me.", "en", 1))
	assert.Equal(t, jobs.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "database locked")
	assert.Zero(t, h.store.Len())
}

func TestSubmit_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.history.panics.Store(1)

	status := h.submitAndWait(t, params("Boom.", "en", 1))
	assert.Equal(t, jobs.StatusFailed, status.Status)
	assert.Contains(t, status.Error, "history index corrupted")

	status = h.submitAndWait(t, params("Still alive.", "en", 1))
	assert.Equal(t, jobs.StatusCompleted, status.Status)
}

func TestSubmit_ProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.synth.gate = make(chan struct{})

	long := strings.Repeat("A sentence that is long enough to need its own chunk in the plan. ", 6)

	submitted, err := h.svc.Submit(context.Background(), params(long, "en", 1))
	require.NoError(t, err)

	var seen []float64

	for {
		status, statusErr := h.svc.Status(submitted.JobID)
		require.NoError(t, statusErr)

		seen = append(seen, status.Progress)
		if status.Status.IsTerminal() {
			break
		}

		select {
		case h.synth.gate <- struct{}{}:
		case <-time.After(time.Millisecond):
		}
	}

	require.NotEmpty(t, seen)
	assert.InDelta(t, 100.0, seen[len(seen)-1], 0.001)

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
}

func TestSubmit_ResolvesPresetLanguageAndSeed(t *testing.T) {
	t.Parallel()

	preset, ok := catalog.LookupPreset("news_anchor")
	require.True(t, ok)

	h := newHarness(t)

	p := params("The committee published its annual report on the state of the national parks today.",
		catalog.AutoLanguage, core.RandomSeed)
	p.Preset = "news_anchor"

	status := h.submitAndWait(t, p)
	require.Equal(t, jobs.StatusCompleted, status.Status)

	requests := h.synth.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "en", requests[0].Language)
	assert.Equal(t, int64(testSeed), requests[0].Seed)
	assert.InDelta(t, preset.Exaggeration, requests[0].Exaggeration, 1e-9)
	assert.InDelta(t, preset.CFGWeight, requests[0].CFGWeight, 1e-9)

	records := h.history.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(testSeed), records[0].Seed)
	assert.Equal(t, "en", records[0].Language)
}

func TestSubmit_UnknownPresetKeepsWeights(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	p := params("Plain voice.", "en", 1)
	p.Preset = "opera"
	p.Exaggeration = 0.25
	p.CFGWeight = 0.75

	status := h.submitAndWait(t, p)
	require.Equal(t, jobs.StatusCompleted, status.Status)

	requests := h.synth.Requests()
	require.Len(t, requests, 1)
	assert.InDelta(t, 0.25, requests[0].Exaggeration, 1e-9)
	assert.InDelta(t, 0.75, requests[0].CFGWeight, 1e-9)
}

func TestSubmit_UnsupportedLanguageFallsBackToDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("Merhaba dünya.", "xx", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	requests := h.synth.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, orchestrator.DefaultLanguage, requests[0].Language)
}

func TestSubmit_NormalizesTurkishText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("%50 indirim var.", "tr", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	requests := h.synth.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "yüzde elli indirim var.", requests[0].Text)

	records := h.history.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "%50 indirim var.", records[0].Text)
}

func TestSubmit_TruncatesHistoryText(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params(strings.Repeat("Çok güzel. ", 100), "en", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	records := h.history.Records()
	require.Len(t, records, 1)
	assert.Len(t, []rune(records[0].Text), 500)
}

func TestSubmit_RemovesOwnedReferenceAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	reference := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(reference, []byte("RIFF"), 0o600))

	p := params("Clone me.", "en", 1)
	p.ReferenceAudioPath = reference
	p.OwnsReferenceAudio = true

	status := h.submitAndWait(t, p)
	require.Equal(t, jobs.StatusCompleted, status.Status)
	assert.Equal(t, reference, h.synth.Requests()[0].ReferenceAudioPath)
	assert.NoFileExists(t, reference)

	rejected := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(rejected, []byte("RIFF"), 0o600))

	p = params("", "en", 1)
	p.ReferenceAudioPath = rejected
	p.OwnsReferenceAudio = true

	_, err := h.svc.Submit(context.Background(), p)
	require.ErrorIs(t, err, core.ErrValidation)
	assert.NoFileExists(t, rejected)
}

func TestSubmit_KeepsCallerReferenceAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	reference := filepath.Join(t.TempDir(), "voice.wav")
	require.NoError(t, os.WriteFile(reference, []byte("RIFF"), 0o600))

	p := params("Borrowed voice.", "en", 1)
	p.ReferenceAudioPath = reference

	status := h.submitAndWait(t, p)
	require.Equal(t, jobs.StatusCompleted, status.Status)
	assert.FileExists(t, reference)
}

func TestHealthAndUnload(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	report := h.svc.Health()
	assert.False(t, report.ResourceLoaded)
	assert.Nil(t, report.Resource)
	assert.False(t, h.svc.Unload())

	status := h.submitAndWait(t, params("Warm up.", "en", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	report = h.svc.Health()
	assert.True(t, report.ResourceLoaded)
	require.NotNil(t, report.Resource)
	assert.Equal(t, 600, report.Resource.TimeoutSeconds)
	assert.Equal(t, 1, report.CompletedCount)
	assert.Zero(t, report.PendingCount+report.ProcessingCount+report.FailedCount)

	assert.True(t, h.svc.Unload())
	assert.False(t, h.svc.Health().ResourceLoaded)
	assert.Equal(t, int32(1), h.synth.closed.Load())
	assert.False(t, h.svc.Unload())

	status = h.submitAndWait(t, params("Load again.", "en", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)
	assert.Equal(t, int32(2), h.loads.Load())
}

func TestHistory_ListsNewestFirst(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	first := h.submitAndWait(t, params("One.", "en", 1))
	second := h.submitAndWait(t, params("Two.", "en", 2))

	records, err := h.svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.DownloadRef, records[0].Filename)
	assert.Equal(t, first.DownloadRef, records[1].Filename)
}

func TestShutdown_RejectsNewJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("Before shutdown.", "en", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	require.NoError(t, h.svc.Shutdown(ctx))
	assert.Equal(t, int32(1), h.synth.closed.Load())

	_, err := h.svc.Submit(context.Background(), params("After shutdown.", "en", 1))
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestShutdown_CancelsRunningJobsAtDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.synth.gate = make(chan struct{})

	submitted, err := h.svc.Submit(context.Background(), params("Never finishes.", "en", 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, h.svc.Shutdown(ctx), context.DeadlineExceeded)

	status, err := h.svc.Status(submitted.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, status.Status)
}

func TestReclaimJobs_RemovesExpiredJobsAndArtifacts(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	status := h.submitAndWait(t, params("Short lived.", "en", 1))
	require.Equal(t, jobs.StatusCompleted, status.Status)

	assert.Zero(t, h.svc.ReclaimJobs(context.Background()))

	h.clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, h.svc.ReclaimJobs(context.Background()))

	_, err := h.svc.Status(status.JobID)
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, h.store.Len())
}
