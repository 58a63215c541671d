// Package geometry provides the coordinate service for Autopatch Core.
//
// It converts between the plate, well, and global reference frames and
// computes collision-safe travel paths for pipette motion. All positions
// are expressed in metres in the global (stage) frame unless a function
// says otherwise.
//
// # Key Types
//
//   - Position: a 3D point in the global frame
//   - Plate: the fixed sample plate reference frame (centre + wells)
//   - Well: a patchable region, positioned relative to the plate centre
//
// # Safe Paths
//
// SafePath implements the lift-move-descend policy: travel is routed up
// to a clearance height, laterally across, then down to the destination.
// This avoids collisions with the sample surface, the stage, and other
// pipettes without requiring a full motion planner.
//
// The package is stateless: every function is a pure function of the
// plate layout and its arguments.
package geometry
