package control

import "time"

// CommandMessage is the payload for all command topics. The action is
// carried in the topic (autopatch/command/{action}); the payload holds
// the action's parameters.
type CommandMessage struct {
	// RequestID correlates the command with its response. Commands
	// without a request ID are executed but get no response.
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is when the sender issued the command.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// WellID and the well-local coordinates, for add_target. X and Y
	// are metres from the well centre; Z is depth relative to the
	// plate reference plane.
	WellID string  `json:"well_id,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Z      float64 `json:"z,omitempty"`

	// TargetID identifies the target, for promote_target.
	TargetID string `json:"target_id,omitempty"`

	// Source identifies the sender (e.g. "ui", "script"), for logging.
	Source string `json:"source,omitempty"`
}

// ResponseMessage is published to autopatch/response/{request_id} after
// a command completes.
type ResponseMessage struct {
	// RequestID is the ID from the original command.
	RequestID string `json:"request_id"`

	// Timestamp is when the response was generated.
	Timestamp time.Time `json:"timestamp"`

	// Success indicates whether the command succeeded.
	Success bool `json:"success"`

	// Data contains action-specific response data (if successful).
	Data map[string]any `json:"data,omitempty"`

	// Error contains failure details (if unsuccessful).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError describes why a command failed.
type ResponseError struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// Error codes used in command responses.
const (
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeUnknownWell    = "unknown_well"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
)
