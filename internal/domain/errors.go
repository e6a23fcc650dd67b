package domain

import "errors"

// Error kinds surfaced by the pipeline. Degradable conditions (insufficient
// history, missing reference, no news) are absorbed by the pipeline and only
// reach callers when a single stage is invoked directly.
var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrDataUnavailable      = errors.New("no price data for date")
	ErrInsufficientHistory  = errors.New("insufficient bar history")
	ErrReferenceUnavailable = errors.New("reference series unavailable")
	ErrServiceUnavailable   = errors.New("explanation service unavailable")
	ErrMissingRequiredField = errors.New("explanation response missing required field")
)
