// Package audio assembles chunk segments into one clip and applies the post-processing filters.
package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// Defaults for segment assembly.
const (
	DEFAULT_SILENCE_BETWEEN_CHUNKS = 150 * time.Millisecond
	DEFAULT_FADE                   = 30 * time.Millisecond
)

var (
	// ErrNoSegments is returned when there is nothing to merge.
	ErrNoSegments = errors.New("no audio segments to merge")
	// ErrSampleRateMismatch is returned when segments disagree on the sample rate.
	ErrSampleRateMismatch = errors.New("audio segments have different sample rates")
)

// MergeConfig holds the silence inserted between segments and the fade applied at their edges.
type MergeConfig struct {
	Silence time.Duration
	Fade    time.Duration
}

// NewDefaultMergeConfig returns 150ms of silence and 30ms fades.
func NewDefaultMergeConfig() MergeConfig {
	return MergeConfig{
		Silence: DEFAULT_SILENCE_BETWEEN_CHUNKS,
		Fade:    DEFAULT_FADE,
	}
}

// Merge concatenates segments in order. A single segment is returned as is. Otherwise every
// segment longer than the fade window gets a linear fade-out on its tail and, except for the
// first, a linear fade-in on its head; silence separates consecutive segments.
// The input buffers are not modified.
func Merge(segments []core.Segment, cfg MergeConfig) (core.Segment, error) {
	if len(segments) == 0 {
		return core.Segment{}, ErrNoSegments
	}

	if len(segments) == 1 {
		return segments[0], nil
	}

	sampleRate := segments[0].SampleRate
	total := 0

	for i, seg := range segments {
		if seg.SampleRate != sampleRate {
			return core.Segment{}, fmt.Errorf("%w: segment %d is %d Hz, expected %d Hz",
				ErrSampleRateMismatch, i, seg.SampleRate, sampleRate)
		}

		total += len(seg.Samples)
	}

	silence := SamplesFor(cfg.Silence, sampleRate)
	fade := SamplesFor(cfg.Fade, sampleRate)
	fadeOut := linspace(1, 0, fade)
	fadeIn := linspace(0, 1, fade)

	out := make([]float64, 0, total+(len(segments)-1)*silence)

	for i, seg := range segments {
		start := len(out)
		out = append(out, seg.Samples...)
		merged := out[start:]

		if fade > 0 && len(merged) > fade {
			tail := merged[len(merged)-fade:]
			for j := range tail {
				tail[j] *= fadeOut[j]
			}

			if i > 0 {
				for j := range fade {
					merged[j] *= fadeIn[j]
				}
			}
		}

		if i < len(segments)-1 {
			out = append(out, make([]float64, silence)...)
		}
	}

	return core.Segment{Samples: out, SampleRate: sampleRate}, nil
}

// Silence returns a zero-filled segment of the given duration.
func Silence(duration time.Duration, sampleRate int) core.Segment {
	return core.Segment{
		Samples:    make([]float64, SamplesFor(duration, sampleRate)),
		SampleRate: sampleRate,
	}
}

// SamplesFor converts a duration into a whole number of samples, truncating.
func SamplesFor(duration time.Duration, sampleRate int) int {
	if duration <= 0 || sampleRate <= 0 {
		return 0
	}

	return int(int64(sampleRate) * int64(duration) / int64(time.Second))
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return nil
	}

	values := make([]float64, n)
	if n == 1 {
		values[0] = start

		return values
	}

	step := (stop - start) / float64(n-1)
	for i := range values {
		values[i] = start + step*float64(i)
	}

	values[n-1] = stop

	return values
}
