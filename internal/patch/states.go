package patch

import "time"

// State is one step of the patching sequence.
type State string

// Patching states, in attempt order. Aborted is the parallel exit path
// reachable from any non-terminal state.
const (
	StateIdle             State = "idle"
	StateApproach         State = "approach"
	StateCellDetect       State = "cell_detect"
	StateSeal             State = "seal"
	StateCellAttached     State = "cell_attached"
	StateBreakIn          State = "break_in"
	StateRecordingHandoff State = "recording_handoff"
	StateClean            State = "clean"
	StateRinse            State = "rinse"
	StateAborted          State = "aborted"
)

// Outcome is the final result of one attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomePatched         Outcome = "patched"
	OutcomeSealedNoBreakin Outcome = "sealed-no-breakin"
	OutcomeNoSeal          Outcome = "no-seal"
	OutcomeDetectFailed    Outcome = "detect-failed"
	OutcomeAborted         Outcome = "aborted"
	OutcomeHardwareError   Outcome = "hardware-error"
)

// StateRecord is one entry of an attempt's state trace.
type StateRecord struct {
	State     State     `json:"state"`
	EnteredAt time.Time `json:"entered_at"`
	ExitedAt  time.Time `json:"exited_at"`

	// Note carries state-specific detail: the failure reason, the
	// resistance at transition, the captured frame ID.
	Note string `json:"note,omitempty"`
}

// Result is what one attempt produces. The scheduler wraps it into a
// ledger record together with unit and target identity.
type Result struct {
	Outcome    Outcome
	States     []StateRecord
	Diagnostic string

	// FrameID identifies the imaging snapshot taken at handoff, when one
	// was captured.
	FrameID string
}
