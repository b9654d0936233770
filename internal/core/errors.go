package core

import "errors"

var (
	// ErrValidation indicates malformed or empty input. It is never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound indicates an unknown job id or a missing result artifact.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation that the job's current status does not allow.
	ErrInvalidState = errors.New("invalid state")
	// ErrResourceLoad indicates the synthesis resource failed to initialize.
	ErrResourceLoad = errors.New("failed to load synthesis resource")
	// ErrStorage indicates a failure writing the output artifact or the history record.
	ErrStorage = errors.New("storage error")
	// ErrGeneration indicates a transient per-chunk synthesis failure.
	ErrGeneration = errors.New("generation error")
)
