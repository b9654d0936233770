// Package orchestrator composes the resource cache, job registry, retry pipeline and audio
// assembler into the asynchronous job API: submit, status, download, health and unload.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/cache"
	"github.com/book-expert/tts-orchestrator/internal/catalog"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/jobs"
	"github.com/book-expert/tts-orchestrator/internal/metrics"
	"github.com/book-expert/tts-orchestrator/internal/tts"
	"github.com/book-expert/tts-orchestrator/internal/tts/text"
)

// Defaults.
const (
	DefaultResourceKey     = "tts"
	DefaultLanguage        = "tr"
	DefaultIdleTimeout     = 600 * time.Second
	DefaultJobRetention    = time.Hour
	DefaultReclaimInterval = 10 * time.Minute
	// MaxRandomSeed bounds the base seed picked for the random-seed sentinel.
	MaxRandomSeed = 999999
)

// Progress milestones. Chunk generation fills [0, ChunkProgressShare].
const (
	ChunkProgressShare = 0.8
	assembledProgress  = 0.9
	persistedProgress  = 0.95
)

var (
	errMissingLoader  = errors.New("a synthesis resource loader is required")
	errMissingStore   = errors.New("an object store is required")
	errMissingHistory = errors.New("a history store is required")
	errShuttingDown   = fmt.Errorf("%w: service is shutting down", core.ErrInvalidState)
)

// Config holds the orchestration settings.
type Config struct {
	ResourceKey     string
	DefaultLanguage string
	MaxTextLength   int
	MaxChunkChars   int
	IdleTimeout     time.Duration
	CacheSweep      time.Duration
	JobRetention    time.Duration
	ReclaimInterval time.Duration
	Generator       tts.GeneratorConfig
	Merge           audio.MergeConfig
	Filters         audio.FilterChain
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ResourceKey:     DefaultResourceKey,
		DefaultLanguage: DefaultLanguage,
		MaxTextLength:   core.MaxTextLength,
		MaxChunkChars:   text.DefaultMaxChunkChars,
		IdleTimeout:     DefaultIdleTimeout,
		CacheSweep:      cache.DefaultSweepInterval,
		JobRetention:    DefaultJobRetention,
		ReclaimInterval: DefaultReclaimInterval,
		Generator:       tts.NewDefaultGeneratorConfig(),
		Merge:           audio.NewDefaultMergeConfig(),
		Filters:         audio.NewDefaultFilterChain(),
	}
}

// Dependencies are the collaborators the Service drives.
type Dependencies struct {
	Loader     cache.Factory[core.Synthesizer]
	Store      core.ObjectStore
	History    core.HistoryStore
	Normalizer core.Normalizer
	Log        *logger.Logger
	// Now and Seeds are overridable for tests.
	Now   func() time.Time
	Seeds func() int64
}

// Service runs generation jobs in the background.
type Service struct {
	cfg        Config
	loader     cache.Factory[core.Synthesizer]
	store      core.ObjectStore
	history    core.HistoryStore
	normalizer core.Normalizer
	log        *logger.Logger
	now        func() time.Time
	seeds      func() int64

	resources *cache.Cache[core.Synthesizer]
	registry  *jobs.Registry
	generator *tts.Generator
	sweeper   *jobs.Sweeper

	mu      sync.Mutex
	closing bool
	waiters map[string]chan struct{}
	running sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New wires a Service. Call Start to begin background reclamation and Shutdown to stop.
func New(cfg Config, deps Dependencies) (*Service, error) {
	switch {
	case deps.Loader == nil:
		return nil, errMissingLoader
	case deps.Store == nil:
		return nil, errMissingStore
	case deps.History == nil:
		return nil, errMissingHistory
	}

	cfg = withDefaults(cfg)

	filterErr := cfg.Filters.Validate()
	if filterErr != nil {
		return nil, fmt.Errorf("invalid audio filter chain: %w", filterErr)
	}

	if deps.Normalizer == nil {
		deps.Normalizer = text.NewTurkishNormalizer()
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}

	if deps.Seeds == nil {
		deps.Seeds = func() int64 { return rand.Int64N(MaxRandomSeed + 1) }
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		cfg:        cfg,
		loader:     deps.Loader,
		store:      deps.Store,
		history:    deps.History,
		normalizer: deps.Normalizer,
		log:        deps.Log,
		now:        deps.Now,
		seeds:      deps.Seeds,
		registry:   jobs.NewRegistryWithClock(deps.Now),
		generator:  tts.NewGenerator(cfg.Generator, deps.Log),
		waiters:    make(map[string]chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	s.resources = cache.New[core.Synthesizer](cfg.IdleTimeout, deps.Log,
		cache.WithSweepInterval[core.Synthesizer](cfg.CacheSweep),
		cache.WithClock[core.Synthesizer](deps.Now),
		cache.WithHooks[core.Synthesizer](cache.Hooks{
			OnLoad:  func(_ string, err error) { metrics.ObserveResourceLoad(err) },
			OnEvict: func(string) { metrics.IncResourceEviction() },
		}),
	)

	sweeper, err := jobs.NewSweeper(s.registry, cfg.JobRetention, cfg.ReclaimInterval, s.removeArtifact, deps.Log)
	if err != nil {
		cancel()

		return nil, err
	}

	s.sweeper = sweeper

	return s, nil
}

func withDefaults(cfg Config) Config {
	defaults := DefaultConfig()

	if cfg.ResourceKey == "" {
		cfg.ResourceKey = defaults.ResourceKey
	}

	if !catalog.IsSupported(cfg.DefaultLanguage) {
		cfg.DefaultLanguage = defaults.DefaultLanguage
	}

	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = defaults.MaxTextLength
	}

	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = defaults.MaxChunkChars
	}

	if cfg.CacheSweep <= 0 {
		cfg.CacheSweep = defaults.CacheSweep
	}

	if cfg.JobRetention <= 0 {
		cfg.JobRetention = defaults.JobRetention
	}

	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = defaults.ReclaimInterval
	}

	return cfg
}

// Start begins the job reclamation schedule.
func (s *Service) Start() {
	s.sweeper.Start()
}

// Shutdown stops accepting background work, waits for running jobs until ctx is done, then
// cancels whatever is still running and releases the synthesis resource.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.sweeper.Stop()

	finished := make(chan struct{})

	go func() {
		s.running.Wait()
		close(finished)
	}()

	var err error

	select {
	case <-finished:
	case <-ctx.Done():
		err = fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}

	s.cancel()
	s.running.Wait()
	s.resources.Close()

	return err
}

// ReclaimJobs runs one reclamation pass immediately and returns the number of removed jobs.
func (s *Service) ReclaimJobs(ctx context.Context) int {
	return s.sweeper.Sweep(ctx)
}

func (s *Service) removeArtifact(ctx context.Context, job jobs.Job) error {
	return s.store.Delete(ctx, job.ResultRef)
}

func (s *Service) logf(write func(log *logger.Logger)) {
	if s.log != nil {
		write(s.log)
	}
}
