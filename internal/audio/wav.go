package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// WAV container constants.
const (
	WAV_HEADER_SIZE       = 44
	WAV_FORMAT_PCM        = 1
	WAV_FORMAT_FLOAT      = 3
	WAV_FORMAT_EXTENSIBLE = 0xFFFE
	WAV_OUTPUT_BIT_DEPTH  = 16
	WAV_CONTENT_TYPE      = "audio/wav"
)

var (
	// ErrInvalidWAV is returned when data is not a readable RIFF/WAVE stream.
	ErrInvalidWAV = errors.New("invalid wav data")
	// ErrUnsupportedWAV is returned for encodings the decoder does not handle.
	ErrUnsupportedWAV = errors.New("unsupported wav encoding")
)

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// EncodeWAV writes seg as 16-bit mono PCM. Samples outside [-1, 1] are clipped.
func EncodeWAV(seg core.Segment) ([]byte, error) {
	if seg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidWAV, seg.SampleRate)
	}

	dataSize := uint32(len(seg.Samples) * WAV_OUTPUT_BIT_DEPTH / 8)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     WAV_HEADER_SIZE - 8 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   WAV_FORMAT_PCM,
		NumChannels:   1,
		SampleRate:    uint32(seg.SampleRate),
		ByteRate:      uint32(seg.SampleRate * WAV_OUTPUT_BIT_DEPTH / 8),
		BlockAlign:    WAV_OUTPUT_BIT_DEPTH / 8,
		BitsPerSample: WAV_OUTPUT_BIT_DEPTH,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAV_HEADER_SIZE+int(dataSize)))

	writeErr := binary.Write(buf, binary.LittleEndian, header)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", writeErr)
	}

	pcm := make([]int16, len(seg.Samples))
	for i, sample := range seg.Samples {
		pcm[i] = int16(math.Round(min(max(sample, -1), 1) * math.MaxInt16))
	}

	writeErr = binary.Write(buf, binary.LittleEndian, pcm)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", writeErr)
	}

	return buf.Bytes(), nil
}

// DecodeWAV reads PCM (8, 16, 24 or 32 bit) or IEEE float WAV data into a mono segment.
// Multi-channel audio is averaged down to one channel.
func DecodeWAV(data []byte) (core.Segment, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return core.Segment{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var (
		format  *wavFormat
		payload []byte
	)

	for offset := 12; offset+8 <= len(data); {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := data[offset+8:]

		if size > len(body) {
			// Streams written before their length was known carry a bogus size.
			size = len(body)
		}

		switch id {
		case "fmt ":
			parsed, err := parseFormat(body[:size])
			if err != nil {
				return core.Segment{}, err
			}

			format = parsed
		case "data":
			payload = body[:size]
		}

		// Chunks are padded to an even length.
		offset += 8 + size + size%2
	}

	if format == nil {
		return core.Segment{}, fmt.Errorf("%w: missing fmt chunk", ErrInvalidWAV)
	}

	if payload == nil {
		return core.Segment{}, fmt.Errorf("%w: missing data chunk", ErrInvalidWAV)
	}

	samples, err := decodeSamples(payload, format)
	if err != nil {
		return core.Segment{}, err
	}

	return core.Segment{Samples: samples, SampleRate: format.sampleRate}, nil
}

func parseFormat(body []byte) (*wavFormat, error) {
	if len(body) < 16 {
		return nil, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
	}

	format := &wavFormat{
		audioFormat:   binary.LittleEndian.Uint16(body[0:2]),
		channels:      int(binary.LittleEndian.Uint16(body[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
	}

	// WAVE_FORMAT_EXTENSIBLE keeps the real format code in the sub-format GUID.
	if format.audioFormat == WAV_FORMAT_EXTENSIBLE && len(body) >= 26 {
		format.audioFormat = binary.LittleEndian.Uint16(body[24:26])
	}

	if format.channels <= 0 || format.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, format.channels, format.sampleRate)
	}

	return format, nil
}

func decodeSamples(payload []byte, format *wavFormat) ([]float64, error) {
	read, err := sampleReader(format)
	if err != nil {
		return nil, err
	}

	width := format.bitsPerSample / 8
	frameSize := width * format.channels
	frames := len(payload) / frameSize
	samples := make([]float64, frames)

	for frame := range frames {
		sum := 0.0

		for ch := range format.channels {
			start := frame*frameSize + ch*width
			sum += read(payload[start : start+width])
		}

		samples[frame] = sum / float64(format.channels)
	}

	return samples, nil
}

func sampleReader(format *wavFormat) (func([]byte) float64, error) {
	switch {
	case format.audioFormat == WAV_FORMAT_PCM && format.bitsPerSample == 8:
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
	case format.audioFormat == WAV_FORMAT_PCM && format.bitsPerSample == 16:
		return func(b []byte) float64 {
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case format.audioFormat == WAV_FORMAT_PCM && format.bitsPerSample == 24:
		return func(b []byte) float64 {
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8

			return float64(v) / 8388608
		}, nil
	case format.audioFormat == WAV_FORMAT_PCM && format.bitsPerSample == 32:
		return func(b []byte) float64 {
			return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
		}, nil
	case format.audioFormat == WAV_FORMAT_FLOAT && format.bitsPerSample == 32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}, nil
	case format.audioFormat == WAV_FORMAT_FLOAT && format.bitsPerSample == 64:
		return func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}, nil
	default:
		return nil, fmt.Errorf("%w: format %d with %d bits per sample",
			ErrUnsupportedWAV, format.audioFormat, format.bitsPerSample)
	}
}
