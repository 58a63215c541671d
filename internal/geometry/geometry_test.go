package geometry

import (
	"errors"
	"math"
	"testing"
)

func testPlate() *Plate {
	return &Plate{
		Center: Position{X: 0.01, Y: 0.02, Z: -0.001},
		Wells: []Well{
			{ID: "A1", Offset: [2]float64{-5e-3, -5e-3}, Radius: 3e-3},
			{ID: "A2", Offset: [2]float64{5e-3, -5e-3}, Radius: 3e-3},
			{ID: "B1", Offset: [2]float64{-5e-3, 5e-3}, Radius: 3e-3},
			{ID: "B2", Offset: [2]float64{5e-3, 5e-3}, Radius: 3e-3},
		},
	}
}

func TestWellToPlate(t *testing.T) {
	plate := testPlate()

	pos, err := plate.WellToPlate("A1", 1e-3, -1e-3)
	if err != nil {
		t.Fatalf("WellToPlate() error = %v", err)
	}

	wantX := 0.01 - 5e-3 + 1e-3
	wantY := 0.02 - 5e-3 - 1e-3
	if math.Abs(pos.X-wantX) > 1e-12 || math.Abs(pos.Y-wantY) > 1e-12 {
		t.Errorf("WellToPlate() = (%v, %v), want (%v, %v)", pos.X, pos.Y, wantX, wantY)
	}
	if pos.Z != plate.Center.Z {
		t.Errorf("WellToPlate() Z = %v, want plate depth %v", pos.Z, plate.Center.Z)
	}
}

func TestWellToPlate_OutOfBounds(t *testing.T) {
	plate := testPlate()

	_, err := plate.WellToPlate("A1", 5e-3, 0)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got: %v", err)
	}
}

func TestWellToPlate_UnknownWell(t *testing.T) {
	plate := testPlate()

	_, err := plate.WellToPlate("Z9", 0, 0)
	if !errors.Is(err, ErrUnknownWell) {
		t.Errorf("expected ErrUnknownWell, got: %v", err)
	}
}

func TestWellAt(t *testing.T) {
	plate := testPlate()

	center, _ := plate.WellCenter("B2")
	well, ok := plate.WellAt(center.Add(1e-3, 0, 0))
	if !ok {
		t.Fatal("WellAt() found no well for a position inside B2")
	}
	if well.ID != "B2" {
		t.Errorf("WellAt() = %q, want %q", well.ID, "B2")
	}

	if _, ok := plate.WellAt(Position{X: 1, Y: 1}); ok {
		t.Error("WellAt() found a well for a position far outside the plate")
	}
}

func TestSafePath_LiftMoveDescend(t *testing.T) {
	from := Position{X: 0, Y: 0, Z: -0.002}
	to := Position{X: 0.005, Y: 0.005, Z: -0.002}
	clearance := 0.001

	path := SafePath(from, to, clearance)
	if len(path) != 3 {
		t.Fatalf("SafePath() returned %d waypoints, want 3", len(path))
	}

	// Lift: straight up to clearance
	if path[0] != (Position{X: 0, Y: 0, Z: clearance}) {
		t.Errorf("lift waypoint = %+v", path[0])
	}
	// Lateral: travel at clearance height
	if path[1] != (Position{X: 0.005, Y: 0.005, Z: clearance}) {
		t.Errorf("lateral waypoint = %+v", path[1])
	}
	// Descend: end exactly at destination
	if path[2] != to {
		t.Errorf("final waypoint = %+v, want %+v", path[2], to)
	}
}

func TestSafePath_AlreadyAboveClearance(t *testing.T) {
	from := Position{X: 0, Y: 0, Z: 0.005}
	to := Position{X: 0.001, Y: 0, Z: 0.003}

	path := SafePath(from, to, 0.001)
	// No lift needed: lateral at from.Z then descend.
	if len(path) != 2 {
		t.Fatalf("SafePath() returned %d waypoints, want 2", len(path))
	}
	if path[0].Z != from.Z {
		t.Errorf("lateral leg Z = %v, want %v", path[0].Z, from.Z)
	}
	if path[len(path)-1] != to {
		t.Errorf("path does not end at destination: %+v", path[len(path)-1])
	}
}

func TestSafePath_VerticalOnly(t *testing.T) {
	from := Position{X: 0.001, Y: 0.001, Z: 0.002}
	to := from.WithZ(-0.001)

	path := SafePath(from, to, 0.001)
	if len(path) != 1 || path[0] != to {
		t.Errorf("vertical move should be a single waypoint, got %+v", path)
	}
}
