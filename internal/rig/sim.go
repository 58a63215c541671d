package rig

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openpatch/autopatch-core/internal/geometry"
)

// SimulatedManipulator is a deterministic in-process Manipulator.
//
// Motion completes after a fixed per-move latency, or after a
// distance-proportional latency when a speed is set. Resistance readings
// come from a programmable function, defaulting to a clean-tip baseline,
// so detect/seal behaviour can be scripted exactly. Every applied pulse
// is recorded for inspection.
//
// Thread Safety: all methods are safe for concurrent use.
type SimulatedManipulator struct {
	mu sync.Mutex

	pos        geometry.Position
	mode       PressureMode
	pressurePa float64
	pulses     []Pulse

	moveDelay time.Duration
	speed     float64
	rangeMin  geometry.Position
	rangeMax  geometry.Position
	rangeSet  bool
	resist    func() float64
	failWith  error
}

// defaultBaselineOhms is a typical open-tip resistance (~5 MΩ).
const defaultBaselineOhms = 5e6

// NewSimulatedManipulator creates a simulator starting at the given
// position with the given per-move latency.
func NewSimulatedManipulator(start geometry.Position, moveDelay time.Duration) *SimulatedManipulator {
	return &SimulatedManipulator{
		pos:       start,
		mode:      PressureAtmosphere,
		moveDelay: moveDelay,
		resist:    func() float64 { return defaultBaselineOhms },
	}
}

// SetTravelRange bounds the workspace. Subsequent moves outside the
// box return ErrOutOfRange, mimicking a manipulator end stop.
func (s *SimulatedManipulator) SetTravelRange(min, max geometry.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeMin, s.rangeMax = min, max
	s.rangeSet = true
}

// SetSpeed switches the motion model from fixed per-move latency to
// distance-proportional latency at the given speed (metres per second).
func (s *SimulatedManipulator) SetSpeed(metersPerSecond float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = metersPerSecond
}

// SetResistanceFunc replaces the resistance source. The function is
// called once per MeasureResistance and must be safe for concurrent use.
func (s *SimulatedManipulator) SetResistanceFunc(fn func() float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resist = fn
}

// FailNext makes every subsequent command return the given error,
// simulating a hardware fault. Pass nil to clear.
func (s *SimulatedManipulator) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Pulses returns a copy of all pulses applied so far, in order.
func (s *SimulatedManipulator) Pulses() []Pulse {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make([]Pulse, len(s.pulses))
	copy(cpy, s.pulses)
	return cpy
}

// PressureState returns the current pressure mode and magnitude.
func (s *SimulatedManipulator) PressureState() (PressureMode, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.pressurePa
}

// MoveTo implements Manipulator. The move completes after the configured
// latency; cancellation leaves the tip at the destination's origin side.
func (s *SimulatedManipulator) MoveTo(ctx context.Context, pos geometry.Position, _ Speed) error {
	if err := s.checkFault(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.rangeSet && !inRange(pos, s.rangeMin, s.rangeMax) {
		s.mu.Unlock()
		return fmt.Errorf("%w: (%.3g, %.3g, %.3g)", ErrOutOfRange, pos.X, pos.Y, pos.Z)
	}
	delay := s.moveDelay
	if s.speed > 0 {
		delay = time.Duration(s.pos.DistanceTo(pos) / s.speed * float64(time.Second))
	}
	s.mu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return fmt.Errorf("move cancelled: %w", ctx.Err())
	}

	s.mu.Lock()
	s.pos = pos
	s.mu.Unlock()
	return nil
}

func inRange(p, min, max geometry.Position) bool {
	return p.X >= min.X && p.X <= max.X &&
		p.Y >= min.Y && p.Y <= max.Y &&
		p.Z >= min.Z && p.Z <= max.Z
}

// Position implements Manipulator.
func (s *SimulatedManipulator) Position(_ context.Context) (geometry.Position, error) {
	if err := s.checkFault(); err != nil {
		return geometry.Position{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// SetPressure implements Manipulator.
func (s *SimulatedManipulator) SetPressure(_ context.Context, mode PressureMode, pressurePa float64) error {
	if err := s.checkFault(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.pressurePa = pressurePa
	return nil
}

// MeasureResistance implements Manipulator.
func (s *SimulatedManipulator) MeasureResistance(_ context.Context) (float64, error) {
	if err := s.checkFault(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	fn := s.resist
	s.mu.Unlock()
	return fn(), nil
}

// ApplyPulse implements Manipulator. The pulse duration is honoured so
// that sequence timing tests observe real elapsed time.
func (s *SimulatedManipulator) ApplyPulse(ctx context.Context, pulse Pulse) error {
	if err := s.checkFault(); err != nil {
		return err
	}

	s.mu.Lock()
	s.pulses = append(s.pulses, pulse)
	s.mu.Unlock()

	select {
	case <-time.After(pulse.Duration):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pulse cancelled: %w", ctx.Err())
	}
}

func (s *SimulatedManipulator) checkFault() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return fmt.Errorf("%w: %w", ErrHardware, s.failWith)
	}
	return nil
}

// SimulatedImager is a deterministic in-process Imager. It tracks the
// maximum number of concurrent Snapshot calls so arbitration tests can
// assert the shared-device mutual exclusion invariant.
type SimulatedImager struct {
	mu            sync.Mutex
	frames        int
	inFlight      int
	maxConcurrent int
	exposure      time.Duration
}

// NewSimulatedImager creates an imager with the given exposure latency.
func NewSimulatedImager(exposure time.Duration) *SimulatedImager {
	return &SimulatedImager{exposure: exposure}
}

// Snapshot implements Imager.
func (s *SimulatedImager) Snapshot(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxConcurrent {
		s.maxConcurrent = s.inFlight
	}
	s.frames++
	id := fmt.Sprintf("frame-%04d", s.frames)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	select {
	case <-time.After(s.exposure):
	case <-ctx.Done():
		return Frame{}, fmt.Errorf("snapshot cancelled: %w", ctx.Err())
	}

	return Frame{ID: id, CapturedAt: time.Now().UTC()}, nil
}

// MaxConcurrent returns the highest number of overlapping Snapshot calls
// observed. A correctly arbitrated imaging path never exceeds 1.
func (s *SimulatedImager) MaxConcurrent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// FrameCount returns the number of frames captured.
func (s *SimulatedImager) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
