package geometry

import "errors"

// Domain errors for the geometry package.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, geometry.ErrOutOfBounds) {
//	    // requested position lies outside the configured plate/well bounds
//	}
var (
	// ErrOutOfBounds is returned when a requested position lies outside
	// the configured plate or well bounds.
	ErrOutOfBounds = errors.New("geometry: position out of bounds")

	// ErrUnknownWell is returned when a well ID is not part of the plate.
	ErrUnknownWell = errors.New("geometry: unknown well")
)
