package tts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/core"
)

const (
	// HealthCheckTimeout defines the timeout for health check operations.
	HealthCheckTimeout = 10 * time.Second
	// DefaultSampleRate is the native rate of the speech service.
	DefaultSampleRate = 24000
)

// ErrSampleRateMismatch is returned when the service answers at an unexpected rate.
var ErrSampleRateMismatch = errors.New("speech service returned an unexpected sample rate")

// HTTPSynthesizer is a core.Synthesizer backed by a standalone speech service.
type HTTPSynthesizer struct {
	client     *HTTPClient
	sampleRate int
}

// NewHTTPSynthesizer wraps client. The sample rate must match what the service produces.
func NewHTTPSynthesizer(client *HTTPClient, sampleRate int) *HTTPSynthesizer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	return &HTTPSynthesizer{client: client, sampleRate: sampleRate}
}

// CheckHealth fails fast when the service is unavailable.
func (s *HTTPSynthesizer) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	healthErr := s.client.HealthCheck(ctx)
	if healthErr != nil {
		return fmt.Errorf("TTS service health check failed: %w", healthErr)
	}

	return nil
}

// Generate synthesizes one chunk and decodes the returned WAV.
func (s *HTTPSynthesizer) Generate(ctx context.Context, req core.SynthesisRequest) (core.Segment, error) {
	data, err := s.client.GenerateSpeech(ctx, TTSRequest{
		Text:           req.Text,
		SpeakerRefPath: req.ReferenceAudioPath,
		Language:       req.Language,
		Exaggeration:   req.Exaggeration,
		CFGWeight:      req.CFGWeight,
		Seed:           req.Seed,
	})
	if err != nil {
		return core.Segment{}, fmt.Errorf("failed to generate speech: %w", err)
	}

	seg, err := audio.DecodeWAV(data)
	if err != nil {
		return core.Segment{}, fmt.Errorf("failed to decode speech audio: %w", err)
	}

	if seg.SampleRate != s.sampleRate {
		return core.Segment{}, fmt.Errorf("%w: got %d Hz, expected %d Hz",
			ErrSampleRateMismatch, seg.SampleRate, s.sampleRate)
	}

	return seg, nil
}

// SampleRate reports the rate of every segment Generate returns.
func (s *HTTPSynthesizer) SampleRate() int {
	return s.sampleRate
}

// Close releases idle connections to the service.
func (s *HTTPSynthesizer) Close() error {
	s.client.httpClient.CloseIdleConnections()

	return nil
}
