// Package rig defines the hardware capability contract Autopatch Core
// requires from a manipulator/pipette unit and the shared imaging device.
//
// The core never talks to hardware directly: the patch state machine and
// the scheduler issue commands through the Manipulator and Imager
// interfaces and suspend until completion, timeout, or cancellation.
// How those commands reach physical devices (serial, vendor SDK, a
// bridge process) is the hosting application's concern.
//
// # Simulated Hardware
//
// SimulatedManipulator and SimulatedImager are deterministic in-process
// implementations used for development (`rig: simulated` in config) and
// by the state machine and scheduler tests. The simulator models motion
// with a configurable per-move latency and produces resistance readings
// from a programmable schedule, so seal/detect scenarios can be scripted
// precisely.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the scheduler reads
// positions for status snapshots while a state machine is commanding the
// same unit.
package rig
