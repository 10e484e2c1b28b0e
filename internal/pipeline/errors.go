package pipeline

import "errors"

var (
	// ErrWorkerTimeout is recorded for a batch unit that did not finish
	// within the per-unit timeout.
	ErrWorkerTimeout = errors.New("worker timed out")

	// ErrWorkerPanic is recorded for a batch unit that panicked.
	ErrWorkerPanic = errors.New("worker panicked")
)
