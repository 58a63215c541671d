package geometry

// SafePath computes an ordered sequence of waypoints from one position
// to another using the lift-move-descend policy:
//
//  1. Rise vertically to the clearance height
//  2. Travel laterally at the clearance height
//  3. Descend vertically to the destination
//
// The clearance height is an absolute Z in the global frame. When both
// endpoints are already above it, the lift step collapses and travel is
// a straight lateral move at the higher endpoint's depth.
//
// The returned slice excludes the starting position and always ends at
// the destination. Degenerate legs (zero displacement) are omitted, so
// a move that is already purely vertical returns a single waypoint.
func SafePath(from, to Position, clearance float64) []Position {
	travelZ := clearance
	if from.Z > travelZ {
		travelZ = from.Z
	}
	if to.Z > travelZ {
		travelZ = to.Z
	}

	var path []Position

	lift := from.WithZ(travelZ)
	if lift != from {
		path = append(path, lift)
	}

	lateral := to.WithZ(travelZ)
	if lateral != lift {
		path = append(path, lateral)
	}

	if to != lateral {
		path = append(path, to)
	}

	if len(path) == 0 {
		// from == to; still report arrival at the destination
		path = append(path, to)
	}
	return path
}

// ApproachAbove returns a staging position directly above the target at
// the given height offset. Used by the approach state to stop short of
// the cell before the slow final descend.
func ApproachAbove(target Position, height float64) Position {
	return target.Add(0, 0, height)
}
