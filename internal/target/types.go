package target

import (
	"time"

	"github.com/google/uuid"

	"github.com/openpatch/autopatch-core/internal/geometry"
)

// State is the lifecycle state of a target.
type State string

// Target lifecycle states. Succeeded and Failed are terminal.
const (
	StatePending    State = "pending"
	StateAssigned   State = "assigned"
	StateInProgress State = "in-progress"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Target is a single candidate cell location to patch.
//
// Fields are mutated only through Queue methods; callers receive copies.
type Target struct {
	ID       string            `json:"id"`
	WellID   string            `json:"well_id"`
	Position geometry.Position `json:"position"`
	State    State             `json:"state"`

	// AssignedUnit is the pipette unit holding the target, empty while
	// pending or after release.
	AssignedUnit string `json:"assigned_unit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// GenerateID returns a new target identifier.
func GenerateID() string {
	return "tgt-" + uuid.NewString()[:8]
}
