package audio_test

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildWAV(t *testing.T, format, channels, sampleRate, bits int, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	blockAlign := channels * bits / 8
	write := func(v any) {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, v))
	}

	buf.WriteString("RIFF")
	write(uint32(36 + len(payload)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(format))
	write(uint16(channels))
	write(uint32(sampleRate))
	write(uint32(sampleRate * blockAlign))
	write(uint16(blockAlign))
	write(uint16(bits))
	// An unrelated chunk that the decoder must skip.
	buf.WriteString("LIST")
	write(uint32(3))
	buf.Write([]byte{1, 2, 3, 0})
	buf.WriteString("data")
	write(uint32(len(payload)))
	buf.Write(payload)

	return buf.Bytes()
}

func TestWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := core.Segment{Samples: []float64{0, 0.5, -0.5, 1, -1, 0.25}, SampleRate: 24000}

	data, err := audio.EncodeWAV(in)
	require.NoError(t, err)
	require.Len(t, data, audio.WAV_HEADER_SIZE+2*len(in.Samples))
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(data[24:28]))

	out, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	assert.Equal(t, 24000, out.SampleRate)
	require.Len(t, out.Samples, len(in.Samples))

	for i := range in.Samples {
		assert.InDelta(t, in.Samples[i], out.Samples[i], 1.0/16384, "sample %d", i)
	}
}

func TestEncodeWAV_ClipsOutOfRange(t *testing.T) {
	t.Parallel()

	data, err := audio.EncodeWAV(core.Segment{Samples: []float64{2, -2}, SampleRate: 8000})
	require.NoError(t, err)

	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(data[44:46])))
	assert.Equal(t, int16(-math.MaxInt16), int16(binary.LittleEndian.Uint16(data[46:48])))

	_, err = audio.EncodeWAV(core.Segment{Samples: nil, SampleRate: 0})
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
}

func TestDecodeWAV_StereoDownmix(t *testing.T) {
	t.Parallel()

	var payload bytes.Buffer
	for _, v := range []int16{16384, 0, -16384, -16384} {
		require.NoError(t, binary.Write(&payload, binary.LittleEndian, v))
	}

	seg, err := audio.DecodeWAV(buildWAV(t, audio.WAV_FORMAT_PCM, 2, 22050, 16, payload.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 22050, seg.SampleRate)
	require.Len(t, seg.Samples, 2)
	assert.InDelta(t, 0.25, seg.Samples[0], 1e-9)
	assert.InDelta(t, -0.5, seg.Samples[1], 1e-9)
}

func TestDecodeWAV_Float32(t *testing.T) {
	t.Parallel()

	var payload bytes.Buffer
	for _, v := range []float32{0.75, -0.125} {
		require.NoError(t, binary.Write(&payload, binary.LittleEndian, v))
	}

	seg, err := audio.DecodeWAV(buildWAV(t, audio.WAV_FORMAT_FLOAT, 1, 24000, 32, payload.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.75, -0.125}, seg.Samples)
}

func TestDecodeWAV_PCM24(t *testing.T) {
	t.Parallel()

	// 0x400000 is half scale, 0xC00000 is minus half scale.
	payload := []byte{0x00, 0x00, 0x40, 0x00, 0x00, 0xC0}

	seg, err := audio.DecodeWAV(buildWAV(t, audio.WAV_FORMAT_PCM, 1, 16000, 24, payload))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.5}, seg.Samples)
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeWAV([]byte("not a wav file at all"))
	require.ErrorIs(t, err, audio.ErrInvalidWAV)

	_, err = audio.DecodeWAV(buildWAV(t, audio.WAV_FORMAT_PCM, 1, 16000, 12, []byte{0, 0, 0}))
	require.ErrorIs(t, err, audio.ErrUnsupportedWAV)

	_, err = audio.DecodeWAV([]byte("RIFF\x04\x00\x00\x00WAVE"))
	require.ErrorIs(t, err, audio.ErrInvalidWAV)
}
