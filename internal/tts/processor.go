package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/core"
)

const defaultChatLLMBinary = "chatllm"

var (
	// ErrModelPathEmpty indicates that the model path is empty.
	ErrModelPathEmpty = errors.New("model path cannot be empty")
	// ErrSnacModelPathEmpty indicates that the SNAC model path is empty.
	ErrSnacModelPathEmpty = errors.New("snac model path cannot be empty")
	// ErrTopPRange indicates that the TopP parameter is out of the valid range [0.0, 1.0].
	ErrTopPRange = errors.New("top_p must be between 0.0 and 1.0")
	// ErrRepetitionPenaltyRange indicates that the RepetitionPenalty parameter is below 1.0.
	ErrRepetitionPenaltyRange = errors.New("repetition penalty must be >= 1.0")
	// ErrTemperatureRange indicates that the Temperature parameter is negative.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrNGLNegative indicates that the NGL (number of GPU layers) parameter is negative.
	ErrNGLNegative = errors.New("n_gpu_layers must be non-negative")
)

// ChatLLMConfig holds the settings of the local chatllm backend.
type ChatLLMConfig struct {
	Binary            string
	ModelPath         string
	SnacModelPath     string
	Voice             string
	NGL               int
	TopP              float64
	RepetitionPenalty float64
	Temperature       float64
	SampleRate        int
}

// Validate ensures that the config contains valid and safe values.
func (c *ChatLLMConfig) Validate() error {
	if c.ModelPath == "" {
		return ErrModelPathEmpty
	}

	if c.SnacModelPath == "" {
		return ErrSnacModelPathEmpty
	}

	if c.TopP < 0.0 || c.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, c.TopP)
	}

	// chatllm: 1.0 means no penalty.
	if c.RepetitionPenalty < 1.0 {
		return fmt.Errorf("%w: got %f", ErrRepetitionPenaltyRange, c.RepetitionPenalty)
	}

	if c.Temperature < 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, c.Temperature)
	}

	if c.NGL < 0 {
		return fmt.Errorf("%w: got %d", ErrNGLNegative, c.NGL)
	}

	return nil
}

// ChatLLMSynthesizer implements core.Synthesizer by running the chatllm binary once per call.
// The binary has no notion of exaggeration, cfg weight or reference audio; those request
// fields are ignored.
type ChatLLMSynthesizer struct {
	config ChatLLMConfig
	log    *logger.Logger
}

// NewChatLLMSynthesizer validates cfg and checks that the binary can be found.
func NewChatLLMSynthesizer(cfg ChatLLMConfig, log *logger.Logger) (*ChatLLMSynthesizer, error) {
	if cfg.Binary == "" {
		cfg.Binary = defaultChatLLMBinary
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	validationErr := cfg.Validate()
	if validationErr != nil {
		return nil, fmt.Errorf("invalid chatllm configuration: %w", validationErr)
	}

	_, lookErr := exec.LookPath(cfg.Binary)
	if lookErr != nil {
		return nil, fmt.Errorf("chatllm binary %q not found: %w", cfg.Binary, lookErr)
	}

	return &ChatLLMSynthesizer{config: cfg, log: log}, nil
}

// Generate runs the binary for one chunk and decodes the exported WAV.
func (p *ChatLLMSynthesizer) Generate(ctx context.Context, req core.SynthesisRequest) (core.Segment, error) {
	tempFile, err := os.CreateTemp("", "tts-output-*.wav")
	if err != nil {
		return core.Segment{}, fmt.Errorf("failed to create temp file for tts output: %w", err)
	}

	_ = tempFile.Close()

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil && p.log != nil {
			p.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	// #nosec G204 -- the binary comes from validated configuration
	cmd := exec.CommandContext(ctx, p.config.Binary, p.buildArgs(req, tempFile.Name())...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return core.Segment{}, fmt.Errorf("chatllm binary execution failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return core.Segment{}, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	seg, err := audio.DecodeWAV(audioData)
	if err != nil {
		return core.Segment{}, fmt.Errorf("failed to decode chatllm output: %w", err)
	}

	if seg.SampleRate != p.config.SampleRate {
		return core.Segment{}, fmt.Errorf("%w: got %d Hz, expected %d Hz",
			ErrSampleRateMismatch, seg.SampleRate, p.config.SampleRate)
	}

	return seg, nil
}

func (p *ChatLLMSynthesizer) buildArgs(req core.SynthesisRequest, exportPath string) []string {
	prompt := req.Text
	if p.config.Voice != "" {
		prompt = fmt.Sprintf("{%s}: %s", p.config.Voice, req.Text)
	}

	return []string{
		"-m", p.config.ModelPath,
		"--snac_model", p.config.SnacModelPath,
		"-p", prompt,
		"--tts_export", exportPath,
		"--seed", strconv.FormatInt(req.Seed, 10),
		"-ngl", strconv.Itoa(p.config.NGL),
		"--top_p", fmt.Sprintf("%.2f", p.config.TopP),
		"--repetition_penalty", fmt.Sprintf("%.2f", p.config.RepetitionPenalty),
		"--temp", fmt.Sprintf("%.2f", p.config.Temperature),
	}
}

// SampleRate reports the configured output rate.
func (p *ChatLLMSynthesizer) SampleRate() int {
	return p.config.SampleRate
}

// Close is a no-op; each call runs its own process.
func (p *ChatLLMSynthesizer) Close() error {
	return nil
}
