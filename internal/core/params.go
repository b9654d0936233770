package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// RandomSeed is the seed sentinel meaning "pick a random base seed".
const RandomSeed int64 = -1

// Parameter bounds.
const (
	MaxTextLength   = 50000
	MinExaggeration = 0.0
	MaxExaggeration = 2.0
	MinCFGWeight    = 0.0
	MaxCFGWeight    = 1.0
)

// Parameter defaults.
const (
	DefaultExaggeration = 0.5
	DefaultCFGWeight    = 0.5
)

// GenerationParameters are the inputs of one text-to-audio request.
type GenerationParameters struct {
	Text               string  `json:"text"`
	Language           string  `json:"language"`
	Preset             string  `json:"preset,omitempty"`
	Exaggeration       float64 `json:"exaggeration"`
	CFGWeight          float64 `json:"cfg_weight"`
	Seed               int64   `json:"seed"`
	ReferenceAudioPath string  `json:"reference_audio_path,omitempty"`

	// OwnsReferenceAudio marks the reference file as a temporary upload that the job
	// removes once it finishes.
	OwnsReferenceAudio bool `json:"-"`
}

// NewGenerationParameters returns parameters with the default weights and a random seed.
func NewGenerationParameters(text string) GenerationParameters {
	return GenerationParameters{
		Text:               text,
		Language:           "",
		Preset:             "",
		Exaggeration:       DefaultExaggeration,
		CFGWeight:          DefaultCFGWeight,
		Seed:               RandomSeed,
		ReferenceAudioPath: "",
		OwnsReferenceAudio: false,
	}
}

// Validate checks the bounds that do not depend on the language or preset catalogue.
func (p *GenerationParameters) Validate(maxTextLength int) error {
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrValidation)
	}

	if maxTextLength > 0 && utf8.RuneCountInString(p.Text) > maxTextLength {
		return fmt.Errorf("%w: text exceeds %d characters", ErrValidation, maxTextLength)
	}

	if !inRange(p.Exaggeration, MinExaggeration, MaxExaggeration) {
		return fmt.Errorf("%w: exaggeration must be between %.1f and %.1f, got %f",
			ErrValidation, MinExaggeration, MaxExaggeration, p.Exaggeration)
	}

	if !inRange(p.CFGWeight, MinCFGWeight, MaxCFGWeight) {
		return fmt.Errorf("%w: cfg weight must be between %.1f and %.1f, got %f",
			ErrValidation, MinCFGWeight, MaxCFGWeight, p.CFGWeight)
	}

	if p.Seed < RandomSeed {
		return fmt.Errorf("%w: seed must be non-negative or %d, got %d", ErrValidation, RandomSeed, p.Seed)
	}

	return nil
}

// inRange reports whether value lies in [lo, hi]. NaN is never in range.
func inRange(value, lo, hi float64) bool {
	return value >= lo && value <= hi
}
