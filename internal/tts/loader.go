package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/tts/ttsutils"
)

// Supported backends.
const (
	BackendHTTP    = "http"
	BackendChatLLM = "chatllm"
)

// ErrUnknownBackend is returned for a backend name that is not supported.
var ErrUnknownBackend = errors.New("unknown synthesis backend")

// BackendConfig selects and configures the synthesis resource.
type BackendConfig struct {
	Backend    string
	ServiceURL string
	Timeout    time.Duration
	SampleRate int
	ChatLLM    ChatLLMConfig
}

// NewLoader returns the factory that constructs the synthesis resource. Every failure is
// reported as core.ErrResourceLoad.
func NewLoader(cfg BackendConfig, log *logger.Logger) func(ctx context.Context) (core.Synthesizer, error) {
	return func(ctx context.Context) (core.Synthesizer, error) {
		started := time.Now()

		synth, err := load(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrResourceLoad, err)
		}

		if log != nil {
			log.Info("Synthesis backend '%s' ready in %s (%d Hz)", cfg.Backend, time.Since(started), synth.SampleRate())
		}

		return synth, nil
	}
}

func load(ctx context.Context, cfg BackendConfig, log *logger.Logger) (core.Synthesizer, error) {
	switch cfg.Backend {
	case BackendHTTP, "":
		if cfg.ServiceURL == "" {
			return nil, errors.New("speech service URL cannot be empty")
		}

		synth := NewHTTPSynthesizer(NewHTTPClient(cfg.ServiceURL, cfg.Timeout), cfg.SampleRate)

		healthErr := synth.CheckHealth(ctx)
		if healthErr != nil {
			return nil, healthErr
		}

		return synth, nil
	case BackendChatLLM:
		chatCfg := cfg.ChatLLM
		if chatCfg.SampleRate <= 0 {
			chatCfg.SampleRate = cfg.SampleRate
		}

		resolveErr := resolveModelPaths(&chatCfg)
		if resolveErr != nil {
			return nil, resolveErr
		}

		return NewChatLLMSynthesizer(chatCfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// resolveModelPaths looks model files up in the working directory and the cache. Empty paths
// are left for validation to reject.
func resolveModelPaths(cfg *ChatLLMConfig) error {
	for _, path := range []*string{&cfg.ModelPath, &cfg.SnacModelPath} {
		if *path == "" {
			continue
		}

		resolved, err := ttsutils.GetModelPath(*path)
		if err != nil {
			return err
		}

		*path = resolved
	}

	return nil
}
