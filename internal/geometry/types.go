package geometry

import "math"

// Position is a point in the global (stage) coordinate frame, in metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the position offset by the given deltas.
func (p Position) Add(dx, dy, dz float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// WithZ returns the position with its Z coordinate replaced.
func (p Position) WithZ(z float64) Position {
	return Position{X: p.X, Y: p.Y, Z: z}
}

// DistanceTo returns the Euclidean distance to another position.
func (p Position) DistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	dz := p.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// LateralDistanceTo returns the XY-plane distance to another position,
// ignoring depth. Used for well containment checks.
func (p Position) LateralDistanceTo(other Position) float64 {
	dx := p.X - other.X
	dy := p.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Well is a patchable region on the plate. Offset is the well centre
// relative to the plate centre, in metres.
type Well struct {
	ID     string
	Offset [2]float64
	Radius float64
}

// Plate is the fixed sample reference frame: a centre position in the
// global frame and the set of wells laid out around it.
type Plate struct {
	Center Position
	Wells  []Well
}

// WellCenter returns the global position of the named well's centre at
// the plate surface depth. Returns ErrUnknownWell for an unknown ID.
func (pl *Plate) WellCenter(wellID string) (Position, error) {
	for _, w := range pl.Wells {
		if w.ID == wellID {
			return pl.Center.Add(w.Offset[0], w.Offset[1], 0), nil
		}
	}
	return Position{}, ErrUnknownWell
}

// WellToPlate converts a well-local XY offset into a global position.
// The local offset is relative to the well centre; depth is taken from
// the plate centre. Returns ErrOutOfBounds if the result lies outside
// the well radius.
func (pl *Plate) WellToPlate(wellID string, localX, localY float64) (Position, error) {
	center, err := pl.WellCenter(wellID)
	if err != nil {
		return Position{}, err
	}

	pos := center.Add(localX, localY, 0)
	if pos.LateralDistanceTo(center) > wellRadius(pl, wellID) {
		return Position{}, ErrOutOfBounds
	}
	return pos, nil
}

// WellAt returns the well containing the given position, if any.
// Containment is a lateral (XY) radius check; depth is ignored.
func (pl *Plate) WellAt(pos Position) (Well, bool) {
	for _, w := range pl.Wells {
		center := pl.Center.Add(w.Offset[0], w.Offset[1], 0)
		if pos.LateralDistanceTo(center) <= w.Radius {
			return w, true
		}
	}
	return Well{}, false
}

func wellRadius(pl *Plate, wellID string) float64 {
	for _, w := range pl.Wells {
		if w.ID == wellID {
			return w.Radius
		}
	}
	return 0
}
