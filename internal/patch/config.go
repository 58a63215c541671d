package patch

import (
	"fmt"
	"time"

	"github.com/openpatch/autopatch-core/internal/rig"
)

// StateConfig holds the tunable parameters for every state type.
//
// Loaded once at startup from the `patch_states` configuration section,
// validated, then shared by reference across all machine instances.
// Read-only after load; safe for concurrent reads.
type StateConfig struct {
	Approach     ApproachConfig     `yaml:"approach"`
	CellDetect   CellDetectConfig   `yaml:"cell_detect"`
	Seal         SealConfig         `yaml:"seal"`
	CellAttached CellAttachedConfig `yaml:"cell_attached"`
	BreakIn      BreakInConfig      `yaml:"break_in"`
	Clean        CleanConfig        `yaml:"clean"`
	Rinse        RinseConfig        `yaml:"rinse"`
}

// ApproachConfig tunes the approach state.
type ApproachConfig struct {
	// StageHeight is the fast-move stop above the target (metres).
	StageHeight float64 `yaml:"stage_height"`

	// FinalHeight is the slow-move stop above the target where cell
	// detection takes over (metres).
	FinalHeight float64 `yaml:"final_height"`

	// TravelClearance is the absolute Z used for lift-move-descend
	// travel between wells (metres, global frame).
	TravelClearance float64 `yaml:"travel_clearance"`

	// Timeout bounds the whole approach including safe-path travel.
	Timeout time.Duration `yaml:"timeout"`
}

// CellDetectConfig tunes the cell detection state.
type CellDetectConfig struct {
	// AdvanceStep is the per-step descend distance (metres).
	AdvanceStep float64 `yaml:"advance_step"`

	// MaxAdvancePastTarget is how far past the target depth the tip may
	// advance before detection is declared failed (metres).
	MaxAdvancePastTarget float64 `yaml:"max_advance_past_target"`

	// DetectThresholdOhms is the resistance rise that signals membrane
	// contact.
	DetectThresholdOhms float64 `yaml:"detect_threshold_ohms"`

	// StepInterval is the dwell between advance steps.
	StepInterval time.Duration `yaml:"step_interval"`

	// Timeout bounds the whole detection phase.
	Timeout time.Duration `yaml:"timeout"`
}

// SealConfig tunes the seal state.
type SealConfig struct {
	// AutoSealTimeout is the window for the seal to form; exceeding it
	// yields outcome no-seal.
	AutoSealTimeout time.Duration `yaml:"auto_seal_timeout"`

	// PressureMode drives sealing suction (suction or auto).
	PressureMode rig.PressureMode `yaml:"pressure_mode"`

	// SuctionPa is the sealing pressure magnitude (pascals, negative).
	SuctionPa float64 `yaml:"suction_pa"`

	// SealThresholdOhms is the gigaseal resistance threshold.
	SealThresholdOhms float64 `yaml:"seal_threshold_ohms"`

	// PollInterval is the resistance sampling period while sealing.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CellAttachedConfig tunes the post-seal stabilization state.
type CellAttachedConfig struct {
	// AutoBreakInDelay is the stabilization wait before break-in.
	AutoBreakInDelay time.Duration `yaml:"auto_break_in_delay"`
}

// BreakInConfig tunes the break-in state.
type BreakInConfig struct {
	// Pulses is the suction pulse sequence applied to rupture the patch.
	Pulses []rig.Pulse `yaml:"pulses"`

	// AccessThresholdOhms is the resistance below which whole-cell
	// access is considered achieved after a pulse.
	AccessThresholdOhms float64 `yaml:"access_threshold_ohms"`
}

// CleanConfig tunes the tip-cleaning state.
type CleanConfig struct {
	// ApproachHeight is the absolute Z clearance for lift-move-descend
	// travel to the clean/rinse baths and home (metres, global frame).
	ApproachHeight float64 `yaml:"approach_height"`

	// Sequence is the pressure pulse pattern that clears debris.
	Sequence []rig.Pulse `yaml:"sequence"`

	// Repeat is how many times the sequence runs.
	Repeat int `yaml:"repeat"`

	// Timeout bounds the whole clean state.
	Timeout time.Duration `yaml:"timeout"`
}

// RinseConfig tunes the rinse state.
type RinseConfig struct {
	Sequence []rig.Pulse   `yaml:"sequence"`
	Repeat   int           `yaml:"repeat"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultStateConfig returns working defaults for a standard 4-unit rig.
// Values mirror typical whole-cell patching parameters; installations
// override them per state in configuration.
func DefaultStateConfig() *StateConfig {
	return &StateConfig{
		Approach: ApproachConfig{
			StageHeight:     100e-6,
			FinalHeight:     10e-6,
			TravelClearance: 2e-3,
			Timeout:         60 * time.Second,
		},
		CellDetect: CellDetectConfig{
			AdvanceStep:          1e-6,
			MaxAdvancePastTarget: 10e-6,
			DetectThresholdOhms:  8e6,
			StepInterval:         100 * time.Millisecond,
			Timeout:              60 * time.Second,
		},
		Seal: SealConfig{
			AutoSealTimeout:   60 * time.Second,
			PressureMode:      rig.PressureSuction,
			SuctionPa:         -2000,
			SealThresholdOhms: 1e9,
			PollInterval:      200 * time.Millisecond,
		},
		CellAttached: CellAttachedConfig{
			AutoBreakInDelay: 5 * time.Second,
		},
		BreakIn: BreakInConfig{
			Pulses: []rig.Pulse{
				{PressurePa: -60000, Duration: 50 * time.Millisecond},
				{PressurePa: -80000, Duration: 50 * time.Millisecond},
				{PressurePa: -100000, Duration: 100 * time.Millisecond},
			},
			AccessThresholdOhms: 100e6,
		},
		Clean: CleanConfig{
			ApproachHeight: 2e-3,
			Sequence: []rig.Pulse{
				{PressurePa: -35000, Duration: time.Second},
				{PressurePa: 100000, Duration: time.Second},
			},
			Repeat:  5,
			Timeout: 120 * time.Second,
		},
		Rinse: RinseConfig{
			Sequence: []rig.Pulse{
				{PressurePa: 50000, Duration: 2 * time.Second},
			},
			Repeat:  2,
			Timeout: 60 * time.Second,
		},
	}
}

// Validate checks the configuration for malformed or missing entries.
// A failure here is fatal at startup; the scheduler never runs with a
// partially valid state table.
func (c *StateConfig) Validate() error {
	if c.Approach.StageHeight <= 0 || c.Approach.FinalHeight <= 0 {
		return fmt.Errorf("%w: approach heights must be positive", ErrInvalidConfig)
	}
	if c.Approach.FinalHeight >= c.Approach.StageHeight {
		return fmt.Errorf("%w: approach.final_height must be below stage_height", ErrInvalidConfig)
	}
	if c.Approach.TravelClearance <= 0 {
		return fmt.Errorf("%w: approach.travel_clearance must be positive", ErrInvalidConfig)
	}
	if c.CellDetect.AdvanceStep <= 0 {
		return fmt.Errorf("%w: cell_detect.advance_step must be positive", ErrInvalidConfig)
	}
	if c.CellDetect.MaxAdvancePastTarget <= 0 {
		return fmt.Errorf("%w: cell_detect.max_advance_past_target must be positive", ErrInvalidConfig)
	}
	if c.CellDetect.DetectThresholdOhms <= 0 {
		return fmt.Errorf("%w: cell_detect.detect_threshold_ohms must be positive", ErrInvalidConfig)
	}
	if c.Seal.AutoSealTimeout <= 0 {
		return fmt.Errorf("%w: seal.auto_seal_timeout must be positive", ErrInvalidConfig)
	}
	if !c.Seal.PressureMode.Valid() {
		return fmt.Errorf("%w: seal.pressure_mode %q not recognised", ErrInvalidConfig, c.Seal.PressureMode)
	}
	if c.Seal.SealThresholdOhms <= 0 {
		return fmt.Errorf("%w: seal.seal_threshold_ohms must be positive", ErrInvalidConfig)
	}
	if c.Seal.PollInterval <= 0 {
		return fmt.Errorf("%w: seal.poll_interval must be positive", ErrInvalidConfig)
	}
	if len(c.BreakIn.Pulses) == 0 {
		return fmt.Errorf("%w: break_in.pulses must not be empty", ErrInvalidConfig)
	}
	if c.BreakIn.AccessThresholdOhms <= 0 {
		return fmt.Errorf("%w: break_in.access_threshold_ohms must be positive", ErrInvalidConfig)
	}
	if c.Clean.ApproachHeight <= 0 {
		return fmt.Errorf("%w: clean.approach_height must be positive", ErrInvalidConfig)
	}
	if len(c.Clean.Sequence) == 0 {
		return fmt.Errorf("%w: clean.sequence must not be empty", ErrInvalidConfig)
	}
	if c.Clean.Repeat <= 0 {
		return fmt.Errorf("%w: clean.repeat must be at least 1", ErrInvalidConfig)
	}
	if c.Rinse.Repeat < 0 {
		return fmt.Errorf("%w: rinse.repeat must not be negative", ErrInvalidConfig)
	}
	return nil
}
