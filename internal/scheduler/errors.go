package scheduler

import "errors"

// Domain errors for the scheduler package.
var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("scheduler: already running")

	// ErrNotRunning is returned when Stop is called before Start.
	ErrNotRunning = errors.New("scheduler: not running")
)
