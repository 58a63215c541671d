package patch

import "errors"

// Domain errors for the patch package.
var (
	// ErrStateTimeout is returned when a state exceeds its configured
	// timeout. Treated as an ordinary failure transition, not a
	// process-level fault.
	ErrStateTimeout = errors.New("patch: state timeout")

	// ErrInvalidConfig is returned when a StateConfig entry is malformed
	// or missing. Fatal at load time; machines are never constructed
	// with an invalid config.
	ErrInvalidConfig = errors.New("patch: invalid state config")

	// ErrHandoffFailed is returned when the recording collaborator
	// rejects the handoff of a patched cell.
	ErrHandoffFailed = errors.New("patch: recording handoff failed")
)
