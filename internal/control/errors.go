package control

import "errors"

// Sentinel errors for command handling.
var (
	// ErrInvalidPayload is returned when a command payload cannot be
	// parsed or is missing required fields.
	ErrInvalidPayload = errors.New("control: invalid command payload")

	// ErrUnknownAction is returned for command topics the handler does
	// not recognise.
	ErrUnknownAction = errors.New("control: unknown action")
)
