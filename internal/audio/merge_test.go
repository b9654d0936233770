package audio_test

import (
	"testing"
	"time"

	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 1000

func constantSegment(n int, value float64) core.Segment {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = value
	}

	return core.Segment{Samples: samples, SampleRate: testSampleRate}
}

func TestMerge_SingleSegmentIsIdentity(t *testing.T) {
	t.Parallel()

	seg := constantSegment(500, 0.5)

	merged, err := audio.Merge([]core.Segment{seg}, audio.NewDefaultMergeConfig())
	require.NoError(t, err)
	assert.Equal(t, seg, merged)
	assert.Same(t, &seg.Samples[0], &merged.Samples[0])
}

func TestMerge_NoSegments(t *testing.T) {
	t.Parallel()

	_, err := audio.Merge(nil, audio.NewDefaultMergeConfig())
	require.ErrorIs(t, err, audio.ErrNoSegments)
}

func TestMerge_SampleRateMismatch(t *testing.T) {
	t.Parallel()

	other := constantSegment(100, 0.5)
	other.SampleRate = 2 * testSampleRate

	_, err := audio.Merge([]core.Segment{constantSegment(100, 0.5), other}, audio.NewDefaultMergeConfig())
	require.ErrorIs(t, err, audio.ErrSampleRateMismatch)
}

func TestMerge_LengthAndFades(t *testing.T) {
	t.Parallel()

	cfg := audio.MergeConfig{Silence: 150 * time.Millisecond, Fade: 30 * time.Millisecond}
	segments := []core.Segment{
		constantSegment(200, 1),
		constantSegment(300, 1),
		constantSegment(100, 1),
	}

	merged, err := audio.Merge(segments, cfg)
	require.NoError(t, err)

	const silence, fade = 150, 30

	require.Len(t, merged.Samples, 200+300+100+2*silence)
	assert.Equal(t, testSampleRate, merged.SampleRate)

	// First segment: untouched head, faded tail.
	assert.InDelta(t, 1.0, merged.Samples[0], 1e-12)
	assert.InDelta(t, 1.0, merged.Samples[200-fade], 1e-12)
	assert.InDelta(t, 0.0, merged.Samples[199], 1e-12)

	// Silence gap.
	for i := 200; i < 200+silence; i++ {
		require.Zero(t, merged.Samples[i])
	}

	// Second segment: faded head.
	second := 200 + silence
	assert.InDelta(t, 0.0, merged.Samples[second], 1e-12)
	assert.InDelta(t, 1.0/float64(fade-1), merged.Samples[second+1], 1e-12)
	assert.InDelta(t, 1.0, merged.Samples[second+fade], 1e-12)

	// The inputs are left alone.
	for _, seg := range segments {
		assert.InDelta(t, 1.0, seg.Samples[0], 1e-12)
		assert.InDelta(t, 1.0, seg.Samples[len(seg.Samples)-1], 1e-12)
	}
}

func TestMerge_ShortSegmentsSkipFades(t *testing.T) {
	t.Parallel()

	cfg := audio.MergeConfig{Silence: 10 * time.Millisecond, Fade: 30 * time.Millisecond}
	segments := []core.Segment{constantSegment(30, 0.25), constantSegment(20, 0.25)}

	merged, err := audio.Merge(segments, cfg)
	require.NoError(t, err)
	require.Len(t, merged.Samples, 30+20+10)

	for i, sample := range merged.Samples {
		if i >= 30 && i < 40 {
			assert.Zero(t, sample)

			continue
		}

		assert.InDelta(t, 0.25, sample, 1e-12, "sample %d", i)
	}
}

func TestSilence(t *testing.T) {
	t.Parallel()

	seg := audio.Silence(500*time.Millisecond, 24000)
	assert.Len(t, seg.Samples, 12000)
	assert.Equal(t, 24000, seg.SampleRate)
	assert.Equal(t, 500*time.Millisecond, seg.Duration())
}
