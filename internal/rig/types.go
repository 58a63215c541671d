package rig

import (
	"context"
	"time"

	"github.com/openpatch/autopatch-core/internal/geometry"
)

// Speed selects the motion profile for a move.
type Speed string

// Motion speeds.
const (
	SpeedSlow Speed = "slow"
	SpeedFast Speed = "fast"
)

// PressureMode selects how pipette pressure is driven.
type PressureMode string

// Pressure modes, mirroring the patch amplifier's pressure controller.
const (
	// PressureAtmosphere vents the pipette to atmospheric pressure.
	PressureAtmosphere PressureMode = "atmosphere"

	// PressureSuction applies constant negative pressure (sealing).
	PressureSuction PressureMode = "suction"

	// PressurePulse applies a short pressure transient (break-in, cleaning).
	PressurePulse PressureMode = "pulse"

	// PressureAuto lets the controller ramp pressure automatically.
	PressureAuto PressureMode = "auto"
)

// Valid reports whether the pressure mode is one of the known values.
func (m PressureMode) Valid() bool {
	switch m {
	case PressureAtmosphere, PressureSuction, PressurePulse, PressureAuto:
		return true
	}
	return false
}

// Pulse is one element of a pressure pulse sequence: a magnitude held
// for a duration. Magnitudes are in pascals; negative values are suction.
type Pulse struct {
	PressurePa float64       `yaml:"pressure_pa" json:"pressure_pa"`
	Duration   time.Duration `yaml:"duration" json:"duration"`
}

// Frame is a handle to a captured image. The core records the handle in
// attempt results; pixel data stays with the imaging collaborator.
type Frame struct {
	ID         string    `json:"id"`
	CapturedAt time.Time `json:"captured_at"`
}

// Manipulator is the capability contract for one pipette unit: motion,
// pressure, and electrical measurement.
//
// All operations block until completion and honour ctx cancellation.
// A cancelled move stops the hardware before returning.
type Manipulator interface {
	// MoveTo moves the pipette tip to a global position.
	MoveTo(ctx context.Context, pos geometry.Position, speed Speed) error

	// Position reports the current tip position in the global frame.
	Position(ctx context.Context) (geometry.Position, error)

	// SetPressure sets the pipette pressure mode and magnitude (pascals).
	SetPressure(ctx context.Context, mode PressureMode, pressurePa float64) error

	// MeasureResistance reads the current tip resistance in ohms.
	MeasureResistance(ctx context.Context) (float64, error)

	// ApplyPulse applies a single pressure pulse and holds it for the
	// pulse duration before venting.
	ApplyPulse(ctx context.Context, pulse Pulse) error
}

// Imager is the capability contract for the shared imaging device.
// Access is serialized by the scheduler; implementations do not need to
// arbitrate concurrent callers themselves.
type Imager interface {
	// Snapshot captures a single frame at the current stage position.
	Snapshot(ctx context.Context) (Frame, error)
}
