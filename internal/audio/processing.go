package audio

import (
	"errors"
	"fmt"
	"math"

	"github.com/book-expert/tts-orchestrator/internal/core"
)

// Default filter settings.
const (
	DEFAULT_HIGH_PASS_HZ        = 80
	DEFAULT_LOW_PASS_HZ         = 10000
	DEFAULT_NOISE_GATE_DB       = -45.0
	DEFAULT_NORMALIZE_TARGET_DB = -3.0
)

// Filter constants.
const (
	BIQUAD_Q               = 0.707
	NOISE_GATE_KERNEL      = 101
	NOISE_GATE_DISABLED_DB = -100.0
	MAX_FILTER_FREQUENCY   = 20000
)

// Constants for error messages and formats.
const (
	ERR_FMT_HIGH_PASS_RANGE   = "%w: high pass filter must be between 0 and %d Hz"
	ERR_FMT_LOW_PASS_RANGE    = "%w: low pass filter must be between 0 and %d Hz"
	ERR_FMT_PASS_BAND_ORDER   = "%w: high pass cutoff %d Hz must be below low pass cutoff %d Hz"
	ERR_FMT_NOISE_GATE_RANGE  = "%w: noise gate threshold must be at most 0 dB, got %.1f"
	ERR_FMT_NORMALIZE_RANGE   = "%w: normalize target must be at most 0 dB, got %.1f"
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be positive, got %d"
)

// ErrInvalidQuality is returned by FilterChain.Validate and Process.
var ErrInvalidQuality = errors.New("invalid quality settings")

// FilterChain is the fixed post-processing chain: highpass, lowpass, noise gate, normalize.
// A zero cutoff disables its filter; a gate threshold at or below -100 dB disables the gate.
type FilterChain struct {
	HighPass          int     `json:"highPass"`
	LowPass           int     `json:"lowPass"`
	NoiseGateDB       float64 `json:"noiseGateDb"`
	Normalize         bool    `json:"normalize"`
	NormalizeTargetDB float64 `json:"normalizeTargetDb"`
}

// NewDefaultFilterChain provides the default voice clean-up settings.
func NewDefaultFilterChain() FilterChain {
	return FilterChain{
		HighPass:          DEFAULT_HIGH_PASS_HZ,
		LowPass:           DEFAULT_LOW_PASS_HZ,
		NoiseGateDB:       DEFAULT_NOISE_GATE_DB,
		Normalize:         true,
		NormalizeTargetDB: DEFAULT_NORMALIZE_TARGET_DB,
	}
}

// Validate checks if filter settings are within reasonable bounds.
func (f *FilterChain) Validate() error {
	highPassErr := validateHighPass(f.HighPass)
	if highPassErr != nil {
		return highPassErr
	}

	lowPassErr := validateLowPass(f.LowPass)
	if lowPassErr != nil {
		return lowPassErr
	}

	if f.HighPass > 0 && f.LowPass > 0 && f.HighPass >= f.LowPass {
		return fmt.Errorf(ERR_FMT_PASS_BAND_ORDER, ErrInvalidQuality, f.HighPass, f.LowPass)
	}

	if f.NoiseGateDB > 0 {
		return fmt.Errorf(ERR_FMT_NOISE_GATE_RANGE, ErrInvalidQuality, f.NoiseGateDB)
	}

	if f.Normalize && f.NormalizeTargetDB > 0 {
		return fmt.Errorf(ERR_FMT_NORMALIZE_RANGE, ErrInvalidQuality, f.NormalizeTargetDB)
	}

	return nil
}

// Process runs the chain in its fixed order and returns a new segment.
func (f *FilterChain) Process(seg core.Segment) (core.Segment, error) {
	if seg.SampleRate <= 0 {
		return core.Segment{}, fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidQuality, seg.SampleRate)
	}

	samples := HighPass(seg.Samples, seg.SampleRate, f.HighPass)
	samples = LowPass(samples, seg.SampleRate, f.LowPass)

	if f.NoiseGateDB > NOISE_GATE_DISABLED_DB {
		samples = NoiseGate(samples, f.NoiseGateDB)
	}

	if f.Normalize {
		samples = Normalize(samples, f.NormalizeTargetDB)
	}

	return core.Segment{Samples: samples, SampleRate: seg.SampleRate}, nil
}

// HighPass attenuates content below cutoff Hz with a second-order biquad.
// A cutoff of 0 or at or above Nyquist returns a copy of samples.
func HighPass(samples []float64, sampleRate, cutoff int) []float64 {
	coeffs, ok := newBiquad(sampleRate, cutoff, true)
	if !ok {
		return clone(samples)
	}

	return coeffs.apply(samples)
}

// LowPass attenuates content above cutoff Hz with a second-order biquad.
// A cutoff of 0 or at or above Nyquist returns a copy of samples.
func LowPass(samples []float64, sampleRate, cutoff int) []float64 {
	coeffs, ok := newBiquad(sampleRate, cutoff, false)
	if !ok {
		return clone(samples)
	}

	return coeffs.apply(samples)
}

// NoiseGate zeroes samples whose magnitude is below thresholdDB. The gate mask is smoothed
// with a moving average so that the gate opens and closes without clicks. Buffers no longer
// than the smoothing kernel use the hard mask.
func NoiseGate(samples []float64, thresholdDB float64) []float64 {
	threshold := dbToLinear(thresholdDB)
	mask := make([]float64, len(samples))

	for i, sample := range samples {
		if math.Abs(sample) > threshold {
			mask[i] = 1
		}
	}

	if len(samples) > NOISE_GATE_KERNEL {
		mask = movingAverage(mask, NOISE_GATE_KERNEL)
	}

	out := make([]float64, len(samples))
	for i, sample := range samples {
		out[i] = sample * mask[i]
	}

	return out
}

// Normalize scales samples so that the peak magnitude reaches targetDB.
// Silent input is returned unchanged.
func Normalize(samples []float64, targetDB float64) []float64 {
	peak := 0.0
	for _, sample := range samples {
		peak = max(peak, math.Abs(sample))
	}

	if peak == 0 {
		return clone(samples)
	}

	gain := dbToLinear(targetDB) / peak
	out := make([]float64, len(samples))

	for i, sample := range samples {
		out[i] = sample * gain
	}

	return out
}

type biquad struct {
	b0, b1, b2, a1, a2 float64
}

// newBiquad designs a Q=0.707 highpass or lowpass section, normalized by a0.
func newBiquad(sampleRate, cutoff int, highPass bool) (biquad, bool) {
	if cutoff <= 0 || sampleRate <= 0 || 2*cutoff >= sampleRate {
		return biquad{}, false
	}

	w0 := 2 * math.Pi * float64(cutoff) / float64(sampleRate)
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * BIQUAD_Q)
	a0 := 1 + alpha

	var b0, b1 float64
	if highPass {
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
	} else {
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
	}

	return biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b0 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}, true
}

// apply runs the section in direct form I, clamping the output to [-1, 1].
func (b biquad) apply(samples []float64) []float64 {
	out := make([]float64, len(samples))

	var x1, x2, y1, y2 float64

	for i, x := range samples {
		y := b.b0*x + b.b1*x1 + b.b2*x2 - b.a1*y1 - b.a2*y2
		x2, x1 = x1, x
		y2, y1 = y1, y
		out[i] = min(max(y, -1), 1)
	}

	return out
}

// movingAverage is a centred box filter with zero padding; every output divides by kernel.
func movingAverage(values []float64, kernel int) []float64 {
	half := kernel / 2
	prefix := make([]float64, len(values)+1)

	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}

	out := make([]float64, len(values))
	for i := range values {
		lo := max(0, i-half)
		hi := min(len(values), i+half+1)
		out[i] = min(max((prefix[hi]-prefix[lo])/float64(kernel), 0), 1)
	}

	return out
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func clone(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)

	return out
}

//
// Validation Helpers
//

func validateHighPass(highPass int) error {
	if highPass < 0 || highPass > MAX_FILTER_FREQUENCY {
		return fmt.Errorf(ERR_FMT_HIGH_PASS_RANGE, ErrInvalidQuality, MAX_FILTER_FREQUENCY)
	}

	return nil
}

func validateLowPass(lowPass int) error {
	if lowPass < 0 || lowPass > MAX_FILTER_FREQUENCY {
		return fmt.Errorf(ERR_FMT_LOW_PASS_RANGE, ErrInvalidQuality, MAX_FILTER_FREQUENCY)
	}

	return nil
}
