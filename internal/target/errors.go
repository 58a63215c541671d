package target

import "errors"

// Domain errors for the target package.
var (
	// ErrNotFound is returned when a target ID does not exist.
	ErrNotFound = errors.New("target: not found")

	// ErrTerminal is returned when mutating a target that has already
	// reached a terminal state.
	ErrTerminal = errors.New("target: already terminal")

	// ErrNotAssigned is returned when releasing a target that was never
	// claimed.
	ErrNotAssigned = errors.New("target: not assigned")
)
