package patch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openpatch/autopatch-core/internal/geometry"
	"github.com/openpatch/autopatch-core/internal/rig"
	"github.com/openpatch/autopatch-core/internal/target"
)

// Logger is the minimal logging interface the machine needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Imaging provides serialized access to the shared imaging device. The
// implementation owns the arbitration; Snapshot blocks until the device
// is available.
type Imaging interface {
	Snapshot(ctx context.Context) (rig.Frame, error)
}

// MotionGuard reserves a travel lane before cross-well motion. Reserve
// blocks until the lane is free and returns a release function the
// caller must invoke once the move completes.
type MotionGuard interface {
	Reserve(ctx context.Context, lane string) (release func(), err error)
}

// RecordingService accepts a patched cell for protocol execution. The
// call registers the handoff and returns; the protocol runs outside the
// patching core.
type RecordingService interface {
	StartProtocol(ctx context.Context, clampID, attemptID string) error
}

// Telemetry receives measurement and state-change samples during an
// attempt. Implementations must not block.
type Telemetry interface {
	RecordResistance(unitID string, ohms float64)
	RecordPressure(unitID string, mode rig.PressureMode, pressurePa float64)
	RecordStateChange(unitID string, state State)
}

type noopTelemetry struct{}

func (noopTelemetry) RecordResistance(string, float64)                 {}
func (noopTelemetry) RecordPressure(string, rig.PressureMode, float64) {}
func (noopTelemetry) RecordStateChange(string, State)                  {}

// UnitInfo is the fixed identity and geometry of one pipette unit.
type UnitInfo struct {
	// ID names the unit in logs, status reports, and the ledger.
	ID string `yaml:"id"`

	// ClampID names the amplifier channel handed to the recording
	// collaborator at handoff.
	ClampID string `yaml:"clamp_id"`

	// Home is the parked position the tip returns to after rinse.
	Home geometry.Position `yaml:"home"`

	// CleanBath and RinseBath are the service well positions for this
	// unit's tip maintenance.
	CleanBath geometry.Position `yaml:"clean_bath"`
	RinseBath geometry.Position `yaml:"rinse_bath"`

	// TipOffset corrects commanded target positions for the measured
	// tip position error, established at calibration.
	TipOffset geometry.Position `yaml:"tip_offset"`
}

// Deps are the machine's collaborators. Manipulator is required;
// everything else defaults to a no-op when nil.
type Deps struct {
	Manipulator rig.Manipulator
	Imaging     Imaging
	Motion      MotionGuard
	Recording   RecordingService
	Telemetry   Telemetry
}

// Machine drives one pipette unit through a single patching attempt.
//
// A machine is owned by exactly one scheduler worker; Run is never
// called concurrently. State is safe to read from other goroutines
// for status reporting.
type Machine struct {
	unit UnitInfo
	cfg  *StateConfig
	deps Deps

	mu     sync.Mutex
	state  State
	logger Logger
}

// New creates a machine for one unit. The config must already be
// validated; New re-validates to guarantee machines never run with a
// broken state table.
func New(unit UnitInfo, cfg *StateConfig, deps Deps) (*Machine, error) {
	if unit.ID == "" {
		return nil, fmt.Errorf("%w: unit id must not be empty", ErrInvalidConfig)
	}
	if deps.Manipulator == nil {
		return nil, fmt.Errorf("%w: manipulator is required", ErrInvalidConfig)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: state config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Telemetry == nil {
		deps.Telemetry = noopTelemetry{}
	}
	return &Machine{
		unit:   unit,
		cfg:    cfg,
		deps:   deps,
		state:  StateIdle,
		logger: noopLogger{},
	}, nil
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	m.logger = logger
}

func (m *Machine) log() Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logger
}

// State reports the machine's current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Unit returns the machine's unit identity.
func (m *Machine) Unit() UnitInfo {
	return m.unit
}

// trace accumulates the state records of one attempt. Each enter closes
// the previous record.
type trace struct {
	records []StateRecord
}

func (t *trace) enter(s State) {
	t.close("")
	t.records = append(t.records, StateRecord{State: s, EnteredAt: time.Now()})
}

func (t *trace) note(note string) {
	if len(t.records) > 0 {
		t.records[len(t.records)-1].Note = note
	}
}

func (t *trace) close(note string) {
	if len(t.records) == 0 {
		return
	}
	last := &t.records[len(t.records)-1]
	if last.ExitedAt.IsZero() {
		last.ExitedAt = time.Now()
	}
	if note != "" {
		last.Note = note
	}
}

func (m *Machine) enter(tr *trace, s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	tr.enter(s)
	m.deps.Telemetry.RecordStateChange(m.unit.ID, s)
	m.log().Debug("patch state change", "unit", m.unit.ID, "state", string(s))
}

// Run executes one complete attempt against the target and returns its
// result. Cancelling ctx aborts the attempt; the clean/rinse tail still
// runs on a detached context so the unit never goes idle with a dirty
// tip. Run always leaves the machine in idle.
func (m *Machine) Run(ctx context.Context, attemptID string, tgt target.Target) Result {
	tr := &trace{}
	log := m.log()
	log.Info("attempt starting",
		"unit", m.unit.ID, "attempt_id", attemptID,
		"target_id", tgt.ID, "well", tgt.WellID)

	outcome, frameID, diag := m.patchSequence(ctx, attemptID, tgt, tr)

	// The maintenance tail runs even after cancellation, bounded by the
	// configured clean/rinse timeouts.
	tailCtx := ctx
	if ctx.Err() != nil {
		tailCtx = context.WithoutCancel(ctx)
	}
	if err := m.maintenanceTail(tailCtx, tr); err != nil {
		log.Error("tip maintenance failed", "unit", m.unit.ID, "error", err)
		if diag == "" {
			diag = err.Error()
		}
		if outcome != OutcomeAborted {
			outcome = OutcomeHardwareError
		}
	}

	m.mu.Lock()
	m.state = StateIdle
	m.mu.Unlock()
	m.deps.Telemetry.RecordStateChange(m.unit.ID, StateIdle)
	tr.close("")

	log.Info("attempt finished",
		"unit", m.unit.ID, "attempt_id", attemptID,
		"target_id", tgt.ID, "outcome", string(outcome))
	return Result{Outcome: outcome, States: tr.records, Diagnostic: diag, FrameID: frameID}
}

// patchSequence runs approach through recording_handoff. It returns the
// attempt outcome before tip maintenance; on abort or hardware fault it
// records the aborted state and returns the matching outcome.
func (m *Machine) patchSequence(ctx context.Context, attemptID string, tgt target.Target, tr *trace) (Outcome, string, string) {
	corrected := tgt.Position.Add(m.unit.TipOffset.X, m.unit.TipOffset.Y, m.unit.TipOffset.Z)

	if err := m.runApproach(ctx, tr, tgt.WellID, corrected); err != nil {
		return m.abort(tr, err), "", err.Error()
	}

	contact, err := m.runCellDetect(ctx, tr, corrected)
	if err != nil {
		return m.abort(tr, err), "", err.Error()
	}
	if !contact {
		return OutcomeDetectFailed, "", "no resistance rise within advance limit"
	}

	sealed, err := m.runSeal(ctx, tr)
	if err != nil {
		return m.abort(tr, err), "", err.Error()
	}
	if !sealed {
		return OutcomeNoSeal, "", "gigaseal not reached within auto_seal_timeout"
	}

	if err := m.runCellAttached(ctx, tr); err != nil {
		return m.abort(tr, err), "", err.Error()
	}

	broken, err := m.runBreakIn(ctx, tr)
	if err != nil {
		return m.abort(tr, err), "", err.Error()
	}
	if !broken {
		return OutcomeSealedNoBreakin, "", "access resistance stayed above threshold"
	}

	frameID, err := m.runHandoff(ctx, tr, attemptID)
	if err != nil {
		if errors.Is(err, ErrHandoffFailed) {
			return OutcomeHardwareError, frameID, err.Error()
		}
		return m.abort(tr, err), frameID, err.Error()
	}
	return OutcomePatched, frameID, ""
}

// abort records the aborted state and maps the cause to an outcome:
// operator cancellation is an abort, everything else (hardware faults,
// state timeouts) a hardware error.
func (m *Machine) abort(tr *trace, cause error) Outcome {
	m.enter(tr, StateAborted)
	tr.note(cause.Error())
	if errors.Is(cause, context.Canceled) {
		return OutcomeAborted
	}
	return OutcomeHardwareError
}

// runApproach travels the safe path to the staging point above the
// target, then descends slowly to the final height.
func (m *Machine) runApproach(ctx context.Context, tr *trace, wellID string, targetPos geometry.Position) error {
	m.enter(tr, StateApproach)
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Approach.Timeout)
	defer cancel()

	stage := geometry.ApproachAbove(targetPos, m.cfg.Approach.StageHeight)
	final := geometry.ApproachAbove(targetPos, m.cfg.Approach.FinalHeight)

	if err := m.travel(ctx, wellID, stage, rig.SpeedFast, m.cfg.Approach.TravelClearance); err != nil {
		return m.stateErr(StateApproach, err)
	}
	if err := m.deps.Manipulator.MoveTo(ctx, final, rig.SpeedSlow); err != nil {
		return m.stateErr(StateApproach, err)
	}
	return nil
}

// runCellDetect advances the tip toward the target in small steps and
// watches for the resistance rise that signals membrane contact. It
// reports false when the tip passes the advance limit without contact.
func (m *Machine) runCellDetect(ctx context.Context, tr *trace, targetPos geometry.Position) (bool, error) {
	m.enter(tr, StateCellDetect)
	ctx, cancel := context.WithTimeout(ctx, m.cfg.CellDetect.Timeout)
	defer cancel()

	cfg := m.cfg.CellDetect
	baseline, err := m.deps.Manipulator.MeasureResistance(ctx)
	if err != nil {
		return false, m.stateErr(StateCellDetect, err)
	}
	m.deps.Telemetry.RecordResistance(m.unit.ID, baseline)

	floor := targetPos.Z - cfg.MaxAdvancePastTarget
	for {
		pos, err := m.deps.Manipulator.Position(ctx)
		if err != nil {
			return false, m.stateErr(StateCellDetect, err)
		}
		if pos.Z-cfg.AdvanceStep < floor {
			tr.note(fmt.Sprintf("advance limit at z=%.3gm, baseline %.3g ohm", pos.Z, baseline))
			return false, nil
		}
		if err := m.deps.Manipulator.MoveTo(ctx, pos.Add(0, 0, -cfg.AdvanceStep), rig.SpeedSlow); err != nil {
			return false, m.stateErr(StateCellDetect, err)
		}
		r, err := m.deps.Manipulator.MeasureResistance(ctx)
		if err != nil {
			return false, m.stateErr(StateCellDetect, err)
		}
		m.deps.Telemetry.RecordResistance(m.unit.ID, r)
		if r >= baseline+cfg.DetectThresholdOhms {
			tr.note(fmt.Sprintf("contact at %.3g ohm", r))
			return true, nil
		}
		if err := sleep(ctx, cfg.StepInterval); err != nil {
			return false, m.stateErr(StateCellDetect, err)
		}
	}
}

// runSeal applies sealing suction and waits for gigaseal resistance.
// Returns false when the auto-seal window closes first. Pressure is
// vented to atmosphere on every exit path.
func (m *Machine) runSeal(ctx context.Context, tr *trace) (sealed bool, err error) {
	m.enter(tr, StateSeal)
	cfg := m.cfg.Seal

	if err := m.setPressure(ctx, cfg.PressureMode, cfg.SuctionPa); err != nil {
		return false, m.stateErr(StateSeal, err)
	}
	defer func() {
		// Venting must survive cancellation; a stuck suction line would
		// rupture the membrane before clean can run.
		ventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ventErr := m.setPressure(ventCtx, rig.PressureAtmosphere, 0); ventErr != nil && err == nil {
			sealed, err = false, m.stateErr(StateSeal, ventErr)
		}
	}()

	deadline := time.Now().Add(cfg.AutoSealTimeout)
	for {
		r, rErr := m.deps.Manipulator.MeasureResistance(ctx)
		if rErr != nil {
			return false, m.stateErr(StateSeal, rErr)
		}
		m.deps.Telemetry.RecordResistance(m.unit.ID, r)
		if r >= cfg.SealThresholdOhms {
			tr.note(fmt.Sprintf("sealed at %.3g ohm", r))
			return true, nil
		}
		if time.Now().After(deadline) {
			tr.note(fmt.Sprintf("auto_seal_timeout at %.3g ohm", r))
			return false, nil
		}
		if sErr := sleep(ctx, cfg.PollInterval); sErr != nil {
			return false, m.stateErr(StateSeal, sErr)
		}
	}
}

// runCellAttached holds the sealed configuration for the configured
// stabilization delay.
func (m *Machine) runCellAttached(ctx context.Context, tr *trace) error {
	m.enter(tr, StateCellAttached)
	if err := sleep(ctx, m.cfg.CellAttached.AutoBreakInDelay); err != nil {
		return m.stateErr(StateCellAttached, err)
	}
	return nil
}

// runBreakIn applies the pulse ladder until access resistance drops
// below threshold. Returns false when the ladder is exhausted.
func (m *Machine) runBreakIn(ctx context.Context, tr *trace) (bool, error) {
	m.enter(tr, StateBreakIn)
	cfg := m.cfg.BreakIn

	for _, pulse := range cfg.Pulses {
		if err := ctx.Err(); err != nil {
			return false, m.stateErr(StateBreakIn, err)
		}
		m.deps.Telemetry.RecordPressure(m.unit.ID, rig.PressurePulse, pulse.PressurePa)
		if err := m.deps.Manipulator.ApplyPulse(ctx, pulse); err != nil {
			return false, m.stateErr(StateBreakIn, err)
		}
		r, err := m.deps.Manipulator.MeasureResistance(ctx)
		if err != nil {
			return false, m.stateErr(StateBreakIn, err)
		}
		m.deps.Telemetry.RecordResistance(m.unit.ID, r)
		if r <= cfg.AccessThresholdOhms {
			tr.note(fmt.Sprintf("whole cell at %.3g ohm", r))
			return true, nil
		}
	}
	return false, nil
}

// runHandoff captures a snapshot of the patched cell and registers the
// clamp channel with the recording collaborator. The snapshot is best
// effort; a handoff rejection fails the attempt.
func (m *Machine) runHandoff(ctx context.Context, tr *trace, attemptID string) (string, error) {
	m.enter(tr, StateRecordingHandoff)

	var frameID string
	if m.deps.Imaging != nil {
		frame, err := m.deps.Imaging.Snapshot(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", m.stateErr(StateRecordingHandoff, err)
			}
			m.log().Warn("handoff snapshot failed", "unit", m.unit.ID, "error", err)
		} else {
			frameID = frame.ID
			tr.note("frame " + frame.ID)
		}
	}

	if m.deps.Recording != nil {
		if err := m.deps.Recording.StartProtocol(ctx, m.unit.ClampID, attemptID); err != nil {
			return frameID, fmt.Errorf("%w: clamp %s: %w", ErrHandoffFailed, m.unit.ClampID, err)
		}
	}
	return frameID, nil
}

// maintenanceTail runs clean then rinse then parks the tip at home.
// Every attempt exit path passes through here.
func (m *Machine) maintenanceTail(ctx context.Context, tr *trace) error {
	if err := m.runBath(ctx, tr, StateClean, m.unit.CleanBath,
		m.cfg.Clean.Sequence, m.cfg.Clean.Repeat, m.cfg.Clean.Timeout); err != nil {
		return err
	}
	if m.cfg.Rinse.Repeat > 0 && len(m.cfg.Rinse.Sequence) > 0 {
		if err := m.runBath(ctx, tr, StateRinse, m.unit.RinseBath,
			m.cfg.Rinse.Sequence, m.cfg.Rinse.Repeat, m.cfg.Rinse.Timeout); err != nil {
			return err
		}
	}

	parkCtx, cancel := context.WithTimeout(ctx, m.cfg.Approach.Timeout)
	defer cancel()
	if err := m.travel(parkCtx, serviceLane, m.unit.Home, rig.SpeedFast, m.cfg.Clean.ApproachHeight); err != nil {
		return m.stateErr(StateRinse, err)
	}
	return nil
}

// serviceLane is the travel lane for moves to the clean/rinse baths and
// the home position, outside any sample well.
const serviceLane = "service"

// runBath moves to a service bath and runs a pressure pulse sequence.
// Travel to the baths uses the clean state's approach height rather
// than the inter-well clearance; the service area sits outside the
// plate, so the shorter lift is safe and faster.
func (m *Machine) runBath(ctx context.Context, tr *trace, state State, bath geometry.Position, seq []rig.Pulse, repeat int, timeout time.Duration) error {
	m.enter(tr, state)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.travel(ctx, serviceLane, bath, rig.SpeedFast, m.cfg.Clean.ApproachHeight); err != nil {
		return m.stateErr(state, err)
	}
	for cycle := 0; cycle < repeat; cycle++ {
		for _, pulse := range seq {
			m.deps.Telemetry.RecordPressure(m.unit.ID, rig.PressurePulse, pulse.PressurePa)
			if err := m.deps.Manipulator.ApplyPulse(ctx, pulse); err != nil {
				return m.stateErr(state, err)
			}
		}
	}
	return nil
}

// travel moves along the lift-move-descend safe path to dst at the
// given clearance height, holding the lane reservation for the
// duration of the move.
func (m *Machine) travel(ctx context.Context, lane string, dst geometry.Position, speed rig.Speed, clearance float64) error {
	if m.deps.Motion != nil {
		release, err := m.deps.Motion.Reserve(ctx, lane)
		if err != nil {
			return err
		}
		defer release()
	}

	from, err := m.deps.Manipulator.Position(ctx)
	if err != nil {
		return err
	}
	for _, wp := range geometry.SafePath(from, dst, clearance) {
		if err := m.deps.Manipulator.MoveTo(ctx, wp, speed); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) setPressure(ctx context.Context, mode rig.PressureMode, pa float64) error {
	if err := m.deps.Manipulator.SetPressure(ctx, mode, pa); err != nil {
		return err
	}
	m.deps.Telemetry.RecordPressure(m.unit.ID, mode, pa)
	return nil
}

// stateErr tags a hardware or cancellation error with the state it
// occurred in, mapping deadline expiry to ErrStateTimeout.
func (m *Machine) stateErr(state State, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrStateTimeout, state)
	}
	return fmt.Errorf("patch: %s: %w", state, err)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
