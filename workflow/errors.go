package workflow

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrRunStoreRequired is returned when a run store is not provided.
	ErrRunStoreRequired = errors.New("run store required")

	// ErrStepStoreRequired is returned when a step store is not provided.
	ErrStepStoreRequired = errors.New("step store required")

	// ErrRunnerClosed is returned by operations on a closed runner.
	ErrRunnerClosed = errors.New("runner closed")

	// ErrDuplicateFunction is returned when a function id is registered twice.
	ErrDuplicateFunction = errors.New("function already registered")

	// ErrInvalidFunction is returned for a function missing its id, trigger, or handler.
	ErrInvalidFunction = errors.New("invalid function")

	// ErrUnknownFunction is returned when a stored run names an unregistered function.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrPanic is recorded when a handler panics.
	ErrPanic = errors.New("handler panicked")
)
