package domain

import "errors"

// Fatal errors: they corrupt the verdict or its persisted history and are
// surfaced to the caller.
var (
	ErrModelUnavailable = errors.New("no classifier loaded for any mode")
	ErrPredictionFailed = errors.New("prediction failed")
	ErrPersistenceWrite = errors.New("fraud history could not be persisted")
)

// Recoverable errors: they only affect explanatory text and are masked
// behind a fallback message.
var (
	ErrExplanationTimeout     = errors.New("explanation timed out")
	ErrExplanationUnreachable = errors.New("explanation backend unreachable")
	ErrExplanationBackend     = errors.New("explanation backend error")
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)
