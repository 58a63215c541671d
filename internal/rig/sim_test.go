package rig

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openpatch/autopatch-core/internal/geometry"
)

func TestSimulatedManipulator_MoveAndPosition(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, time.Millisecond)
	ctx := context.Background()

	target := geometry.Position{X: 1e-3, Y: 2e-3, Z: -0.5e-3}
	if err := sim.MoveTo(ctx, target, SpeedFast); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}

	pos, err := sim.Position(ctx)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != target {
		t.Errorf("position = %+v, want %+v", pos, target)
	}
}

func TestSimulatedManipulator_MoveCancelled(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sim.MoveTo(ctx, geometry.Position{X: 1}, SpeedFast)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}

	// Cancelled move must not report arrival.
	pos, _ := sim.Position(context.Background())
	if pos == (geometry.Position{X: 1}) {
		t.Error("cancelled move updated position")
	}
}

func TestSimulatedManipulator_TravelRange(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, 0)
	sim.SetTravelRange(
		geometry.Position{X: -10e-3, Y: -10e-3, Z: -1e-3},
		geometry.Position{X: 10e-3, Y: 10e-3, Z: 5e-3},
	)
	ctx := context.Background()

	if err := sim.MoveTo(ctx, geometry.Position{X: 5e-3}, SpeedFast); err != nil {
		t.Fatalf("in-range MoveTo: %v", err)
	}

	err := sim.MoveTo(ctx, geometry.Position{X: 20e-3}, SpeedFast)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got: %v", err)
	}
	// A rejected move leaves the tip where it was.
	pos, _ := sim.Position(ctx)
	if pos.X != 5e-3 {
		t.Errorf("position after rejected move = %+v", pos)
	}
}

func TestSimulatedManipulator_SpeedScaledLatency(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, 0)
	sim.SetSpeed(0.1) // 5 mm at 0.1 m/s = 50ms

	start := time.Now()
	if err := sim.MoveTo(context.Background(), geometry.Position{X: 5e-3}, SpeedFast); err != nil {
		t.Fatalf("MoveTo: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("5mm move at 0.1 m/s took %v, expected ~50ms", elapsed)
	}
}

func TestSimulatedManipulator_ResistanceSchedule(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, 0)
	ctx := context.Background()

	readings := []float64{5e6, 20e6, 1.2e9}
	var mu sync.Mutex
	i := 0
	sim.SetResistanceFunc(func() float64 {
		mu.Lock()
		defer mu.Unlock()
		r := readings[i]
		if i < len(readings)-1 {
			i++
		}
		return r
	})

	for _, want := range readings {
		got, err := sim.MeasureResistance(ctx)
		if err != nil {
			t.Fatalf("MeasureResistance: %v", err)
		}
		if got != want {
			t.Errorf("resistance = %v, want %v", got, want)
		}
	}
}

func TestSimulatedManipulator_FaultInjection(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, 0)
	sim.FailNext(errors.New("axis stalled"))

	err := sim.MoveTo(context.Background(), geometry.Position{X: 1}, SpeedSlow)
	if !errors.Is(err, ErrHardware) {
		t.Errorf("expected ErrHardware, got: %v", err)
	}

	sim.FailNext(nil)
	if err := sim.MoveTo(context.Background(), geometry.Position{X: 1}, SpeedSlow); err != nil {
		t.Errorf("MoveTo after clearing fault: %v", err)
	}
}

func TestSimulatedManipulator_RecordsPulses(t *testing.T) {
	sim := NewSimulatedManipulator(geometry.Position{}, 0)
	ctx := context.Background()

	seq := []Pulse{
		{PressurePa: -300, Duration: time.Millisecond},
		{PressurePa: 1000, Duration: 2 * time.Millisecond},
	}
	for _, p := range seq {
		if err := sim.ApplyPulse(ctx, p); err != nil {
			t.Fatalf("ApplyPulse: %v", err)
		}
	}

	got := sim.Pulses()
	if len(got) != len(seq) {
		t.Fatalf("recorded %d pulses, want %d", len(got), len(seq))
	}
	for i := range seq {
		if got[i] != seq[i] {
			t.Errorf("pulse[%d] = %+v, want %+v", i, got[i], seq[i])
		}
	}
}

func TestSimulatedImager_TracksConcurrency(t *testing.T) {
	img := NewSimulatedImager(10 * time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := img.Snapshot(ctx); err != nil {
				t.Errorf("Snapshot: %v", err)
			}
		}()
	}
	wg.Wait()

	if img.FrameCount() != 4 {
		t.Errorf("FrameCount = %d, want 4", img.FrameCount())
	}
	// Unarbitrated concurrent calls must be visible to callers.
	if img.MaxConcurrent() < 2 {
		t.Errorf("MaxConcurrent = %d, expected overlap without arbitration", img.MaxConcurrent())
	}
}

func TestPressureMode_Valid(t *testing.T) {
	for _, m := range []PressureMode{PressureAtmosphere, PressureSuction, PressurePulse, PressureAuto} {
		if !m.Valid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if PressureMode("vacuum").Valid() {
		t.Error("unknown mode reported valid")
	}
}
