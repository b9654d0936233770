package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/config"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/history"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
	"github.com/book-expert/tts-orchestrator/internal/orchestrator"
	"github.com/book-expert/tts-orchestrator/internal/tts"
	"github.com/book-expert/tts-orchestrator/internal/worker"
	"github.com/nats-io/nats.go"
)

// app holds the wired service and everything that must be closed with it.
type app struct {
	service *orchestrator.Service
	worker  *worker.NatsWorker
	history *history.SQLiteStore
	nats    *nats.Conn
}

// buildApp wires stores, the orchestrator and, when withWorker is set and enabled in cfg, the
// NATS worker.
func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger, withWorker bool) (*app, error) {
	built := &app{}

	needsNATS := cfg.Storage.Backend == config.StorageNATS || (withWorker && cfg.NATS.WorkerEnabled)
	if needsNATS {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("tts-service"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		built.nats = conn
	}

	store, err := built.buildStore(ctx, cfg)
	if err != nil {
		built.Close()

		return nil, err
	}

	historyStore, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		built.Close()

		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	built.history = historyStore

	service, err := orchestrator.New(cfg.Orchestrator(), orchestrator.Dependencies{
		Loader:  tts.NewLoader(cfg.Backend(), log),
		Store:   store,
		History: historyStore,
		Log:     log,
	})
	if err != nil {
		built.Close()

		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	built.service = service

	if withWorker && cfg.NATS.WorkerEnabled {
		workerErr := built.buildWorker(cfg, log)
		if workerErr != nil {
			built.Close()

			return nil, workerErr
		}
	}

	return built, nil
}

func (a *app) buildStore(ctx context.Context, cfg *config.Config) (core.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageNATS:
		return a.natsStore(cfg)
	case config.StorageMinio:
		store, err := objectstore.NewMinioStore(ctx, cfg.Minio())
		if err != nil {
			return nil, fmt.Errorf("failed to open MinIO store: %w", err)
		}

		return store, nil
	default:
		store, err := objectstore.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}

		return store, nil
	}
}

func (a *app) natsStore(cfg *config.Config) (*objectstore.NatsObjectStore, error) {
	jetstreamContext, err := a.nats.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.NewNatsObjectStore(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open NATS object store: %w", err)
	}

	return store, nil
}

func (a *app) buildWorker(cfg *config.Config, log *logger.Logger) error {
	store, err := a.natsStore(cfg)
	if err != nil {
		return err
	}

	natsWorker, err := worker.NewNatsWorker(a.nats, store, a.service, worker.Options{
		Subject:    cfg.NATS.TextProcessedSubject,
		Queue:      cfg.NATS.QueueGroup,
		Language:   cfg.NATS.WorkerLanguage,
		JobTimeout: cfg.JobTimeout(),
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	a.worker = natsWorker

	return nil
}

// Shutdown stops the orchestrator, then closes the stores.
func (a *app) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if a.service != nil {
		shutdownErr = a.service.Shutdown(ctx)
	}

	return errors.Join(shutdownErr, a.Close())
}

// Close releases the history database and the NATS connection.
func (a *app) Close() error {
	var closeErr error
	if a.history != nil {
		closeErr = a.history.Close()
		a.history = nil
	}

	if a.nats != nil {
		a.nats.Close()
		a.nats = nil
	}

	return closeErr
}
