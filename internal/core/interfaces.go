// Package core defines the core business types and interfaces for the TTS orchestrator.
package core

import (
	"context"
	"io"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// SynthesisRequest is a single invocation of the synthesis resource for one chunk attempt.
type SynthesisRequest struct {
	Text               string
	Language           string
	ReferenceAudioPath string
	Exaggeration       float64
	CFGWeight          float64
	Seed               int64
}

// Synthesizer is the heavyweight speech-synthesis resource. Implementations may be slow
// and may fail transiently. Close releases whatever memory the resource holds.
type Synthesizer interface {
	io.Closer

	Generate(ctx context.Context, req SynthesisRequest) (Segment, error)
	SampleRate() int
}

// Segment is a mono sample buffer at a fixed sample rate. Samples are in [-1, 1].
type Segment struct {
	Samples    []float64
	SampleRate int
}

// Duration reports the playback length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}

	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

// HistoryRecord is one persisted generation.
type HistoryRecord struct {
	Timestamp    string  `json:"timestamp"`
	Text         string  `json:"text"`
	Language     string  `json:"language"`
	Seed         int64   `json:"seed"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Filename     string  `json:"filename"`
}

// HistoryStore is the append/query store for generation history.
type HistoryStore interface {
	Add(ctx context.Context, record HistoryRecord) error
	List(ctx context.Context, limit int) ([]HistoryRecord, error)
	GetByFilename(ctx context.Context, filename string) (*HistoryRecord, error)
}

// Normalizer rewrites text into a speakable form before chunking.
type Normalizer interface {
	Normalize(text string) string
}
