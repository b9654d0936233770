// Package worker provides a NATS worker that turns text-processed events into TTS jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/catalog"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/jobs"
	"github.com/book-expert/tts-orchestrator/internal/orchestrator"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one message from text download to reply.
const DefaultJobTimeout = 10 * time.Minute

var (
	// ErrEmptyText indicates that the downloaded text object has no content.
	ErrEmptyText = errors.New("text object is empty")
	// ErrJobFailed indicates that the job reached the failed state.
	ErrJobFailed = errors.New("tts job failed")
	// ErrEmptySubject indicates that no subject was configured.
	ErrEmptySubject = errors.New("subject cannot be empty")
)

// JobService is the part of the orchestrator the worker drives.
type JobService interface {
	Submit(ctx context.Context, params core.GenerationParameters) (orchestrator.SubmitResult, error)
	Wait(ctx context.Context, id string) (orchestrator.StatusResult, error)
	Download(ctx context.Context, id string) (orchestrator.Artifact, error)
}

// Options tune how events become jobs.
type Options struct {
	// Subject is the subject text-processed events arrive on.
	Subject string
	// Queue, when set, load-balances events across workers in the same queue group.
	Queue string
	// Language is used for every event. "auto" detects it from the text.
	Language   string
	JobTimeout time.Duration
}

// NatsWorker listens for text-processed events on a NATS subject and replies with the key of
// the generated audio.
type NatsWorker struct {
	natsConnection *nats.Conn
	store          core.ObjectStore
	service        JobService
	opts           Options
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. store holds both the incoming text
// and the outgoing audio.
func NewNatsWorker(
	natsConnection *nats.Conn,
	store core.ObjectStore,
	service JobService,
	opts Options,
	log *logger.Logger,
) (*NatsWorker, error) {
	if strings.TrimSpace(opts.Subject) == "" {
		return nil, ErrEmptySubject
	}

	if opts.Language == "" {
		opts.Language = catalog.AutoLanguage
	}

	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		store:          store,
		service:        service,
		opts:           opts,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages. It drains the subscription when
// ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.opts.Queue != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.opts.Subject, w.opts.Queue, w.handleMessage)
	} else {
		sub, err = w.natsConnection.Subscribe(w.opts.Subject, w.handleMessage)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	w.logf(func(log *logger.Logger) {
		log.System("Worker listening on subject %s", w.opts.Subject)
	})

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.JobTimeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.logf(func(log *logger.Logger) {
			log.Error("Failed to parse event: %v", err)
		})

		return
	}

	audioKey, processErr := w.processTTSJob(ctx, event)
	if processErr != nil {
		w.logf(func(log *logger.Logger) {
			log.Error("Failed to process TTS job for workflow %s: %v", event.Header.WorkflowID, processErr)
		})

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.logf(func(log *logger.Logger) {
			log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
		})
	}
}

// processTTSJob downloads the text, runs it as a job, and uploads the resulting audio.
func (w *NatsWorker) processTTSJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.store.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	if strings.TrimSpace(string(textData)) == "" {
		return "", fmt.Errorf("%w: key '%s'", ErrEmptyText, event.TextKey)
	}

	submitted, err := w.service.Submit(ctx, w.paramsFor(event, string(textData)))
	if err != nil {
		return "", fmt.Errorf("failed to submit job: %w", err)
	}

	status, err := w.service.Wait(ctx, submitted.JobID)
	if err != nil {
		return "", fmt.Errorf("failed to wait for job %s: %w", submitted.JobID, err)
	}

	if status.Status != jobs.StatusCompleted {
		return "", fmt.Errorf("%w: job %s: %s", ErrJobFailed, submitted.JobID, status.Error)
	}

	artifact, err := w.service.Download(ctx, submitted.JobID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch audio of job %s: %w", submitted.JobID, err)
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, artifact.Data)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.logf(func(log *logger.Logger) {
		log.Info("Workflow %s page %d/%d: job %s stored as %s",
			event.Header.WorkflowID, event.PageNumber, event.TotalPages, submitted.JobID, audioKey)
	})

	return audioKey, nil
}

// paramsFor maps an event onto generation parameters. A voice naming a preset selects it; a
// negative seed asks for a random one.
func (w *NatsWorker) paramsFor(event *events.TextProcessedEvent, text string) core.GenerationParameters {
	params := core.NewGenerationParameters(text)
	params.Language = w.opts.Language
	params.Seed = int64(event.Seed)

	if params.Seed < 0 {
		params.Seed = core.RandomSeed
	}

	if _, ok := catalog.LookupPreset(event.Voice); ok {
		params.Preset = event.Voice
	}

	return params
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, fmt.Errorf("%w: event %s has no text key", core.ErrValidation, event.Header.EventID)
	}

	return &event, nil
}

func (w *NatsWorker) logf(write func(log *logger.Logger)) {
	if w.log != nil {
		write(w.log)
	}
}
