package jobs_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newParams() core.GenerationParameters {
	return core.NewGenerationParameters("Merhaba dünya.")
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())
	require.NotEmpty(t, id)

	job, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, job.Status)
	assert.Zero(t, job.Progress)
	assert.Equal(t, "Merhaba dünya.", job.Params.Text)

	other := registry.Create(newParams())
	assert.NotEqual(t, id, other)
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()

	_, err := jobs.NewRegistry().Get("missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())

	job, err := registry.Get(id)
	require.NoError(t, err)
	job.Status = jobs.StatusCompleted

	again, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, again.Status)
}

func TestLifecycle_Completed(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())

	require.NoError(t, registry.Start(id))
	require.NoError(t, registry.UpdateProgress(id, 0.4))
	require.NoError(t, registry.Complete(id, "tts_1.wav"))

	job, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.InDelta(t, 1.0, job.Progress, 1e-9)
	assert.Equal(t, "tts_1.wav", job.ResultRef)
	assert.False(t, job.CompletedAt.IsZero())
}

func TestLifecycle_TerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())

	require.ErrorIs(t, registry.Complete(id, "early.wav"), jobs.ErrInvalidTransition)
	require.ErrorIs(t, registry.Fail(id, "early"), jobs.ErrInvalidTransition)
	require.ErrorIs(t, registry.UpdateProgress(id, 0.5), jobs.ErrInvalidTransition)

	require.NoError(t, registry.Start(id))
	require.ErrorIs(t, registry.Start(id), jobs.ErrInvalidTransition)
	require.NoError(t, registry.Fail(id, "boom"))

	require.ErrorIs(t, registry.Complete(id, "late.wav"), jobs.ErrInvalidTransition)
	require.ErrorIs(t, registry.Fail(id, "again"), core.ErrInvalidState)
	require.ErrorIs(t, registry.Start(id), jobs.ErrInvalidTransition)

	job, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "boom", job.Error)
	assert.Empty(t, job.ResultRef)
}

func TestTerminalStatesRequireDetails(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())
	require.NoError(t, registry.Start(id))

	require.ErrorIs(t, registry.Complete(id, ""), core.ErrValidation)
	require.ErrorIs(t, registry.Fail(id, ""), core.ErrValidation)

	job, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, job.Status)
}

func TestUpdateProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())
	require.NoError(t, registry.Start(id))

	var observed []float64

	for _, value := range []float64{0.2, 0.1, 0.5, 0.5, 0.3, 1.7, -1} {
		require.NoError(t, registry.UpdateProgress(id, value))

		job, err := registry.Get(id)
		require.NoError(t, err)

		observed = append(observed, job.Progress)
	}

	assert.Equal(t, []float64{0.2, 0.2, 0.5, 0.5, 0.5, 1, 1}, observed)
}

func TestConcurrentProgressNeverDecreases(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	id := registry.Create(newParams())
	require.NoError(t, registry.Start(id))

	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)

		go func(step int) {
			defer wg.Done()

			assert.NoError(t, registry.UpdateProgress(id, float64(step)/50))
		}(i)
	}

	last := 0.0
	for range 200 {
		job, err := registry.Get(id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, job.Progress, last)

		last = job.Progress
	}

	wg.Wait()

	job, err := registry.Get(id)
	require.NoError(t, err)
	assert.InDelta(t, 49.0/50, job.Progress, 1e-9)
}

func TestReclaimSkipsActiveJobs(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := jobs.NewRegistryWithClock(clock.Now)

	pending := registry.Create(newParams())
	processing := registry.Create(newParams())
	require.NoError(t, registry.Start(processing))

	done := registry.Create(newParams())
	require.NoError(t, registry.Start(done))
	require.NoError(t, registry.Complete(done, "done.wav"))

	failed := registry.Create(newParams())
	require.NoError(t, registry.Start(failed))
	require.NoError(t, registry.Fail(failed, "boom"))

	clock.Advance(2 * time.Hour)
	fresh := registry.Create(newParams())
	require.NoError(t, registry.Start(fresh))
	require.NoError(t, registry.Complete(fresh, "fresh.wav"))

	removed := registry.Reclaim(time.Hour)
	require.Len(t, removed, 2)

	ids := []string{removed[0].ID, removed[1].ID}
	assert.ElementsMatch(t, []string{done, failed}, ids)

	for _, id := range []string{pending, processing, fresh} {
		_, err := registry.Get(id)
		require.NoError(t, err)
	}

	assert.Equal(t, jobs.Counts{Pending: 1, Processing: 1, Completed: 1, Failed: 0}, registry.Counts())
}

func TestSweeperRemovesArtifacts(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	registry := jobs.NewRegistryWithClock(clock.Now)

	id := registry.Create(newParams())
	require.NoError(t, registry.Start(id))
	require.NoError(t, registry.Complete(id, "old.wav"))

	failed := registry.Create(newParams())
	require.NoError(t, registry.Start(failed))
	require.NoError(t, registry.Fail(failed, "boom"))

	clock.Advance(2 * time.Hour)

	var (
		mu      sync.Mutex
		deleted []string
	)

	sweeper, err := jobs.NewSweeper(registry, time.Hour, time.Minute, func(_ context.Context, job jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()

		deleted = append(deleted, job.ResultRef)

		return nil
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, sweeper.Sweep(context.Background()))
	assert.Equal(t, []string{"old.wav"}, deleted)
	assert.Zero(t, registry.Len())
}

func TestNewSweeperRejectsBadInterval(t *testing.T) {
	t.Parallel()

	_, err := jobs.NewSweeper(jobs.NewRegistry(), time.Hour, 0, nil, nil)
	require.Error(t, err)
}
