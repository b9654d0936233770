package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/tts-orchestrator/internal/httpapi"
	"github.com/book-expert/tts-orchestrator/internal/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const bytesPerMB = 1 << 20

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API and, when enabled, the NATS worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLogger(log)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()

	built, err := buildApp(ctx, cfg, log, true)
	if err != nil {
		log.Error("Failed to build service: %v", err)

		return err
	}

	built.service.Start()

	api := httpapi.NewServer(built.service, httpapi.Options{
		MaxUploadBytes: int64(cfg.HTTP.MaxUploadMB) * bytesPerMB,
		Metrics:        true,
	}, log)
	server := api.NewHTTPServer(cfg.HTTPAddr())

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.System("HTTP API listening on %s", server.Addr)

		serveErr := server.ListenAndServe()
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	})

	if built.worker != nil {
		group.Go(func() error {
			log.System("NATS worker subscribed to %s", cfg.NATS.TextProcessedSubject)

			return built.worker.Run(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.System("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()

		return errors.Join(server.Shutdown(shutdownCtx), built.Shutdown(shutdownCtx))
	})

	err = group.Wait()
	if err != nil {
		log.Error("Service stopped with error: %v", err)

		return err
	}

	log.System("Service stopped.")

	return nil
}
