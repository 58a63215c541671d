package rig

import "errors"

// Domain errors for the rig package.
var (
	// ErrHardware is returned (possibly wrapped) when a device reports a
	// fault: a failed move, an unreachable controller, a sensor error.
	ErrHardware = errors.New("rig: hardware fault")

	// ErrOutOfRange is returned when a move target lies outside the
	// manipulator's travel range.
	ErrOutOfRange = errors.New("rig: target out of range")
)
