// Package patch implements the per-pipette patching state machine.
//
// One Machine runs one attempt: it drives a single pipette unit through
// approach → cell_detect → seal → cell_attached → break_in →
// recording_handoff → clean → rinse and back to idle, suspending at
// every hardware call. A parallel exit path routes any non-terminal
// state through aborted on cancellation or an unrecoverable fault.
//
// # Transitions
//
// Every transition is an explicit function of (current state, event);
// there are no callback chains. Transitions are monotonic within one
// attempt — no state is re-entered except the designated clean/rinse
// tail, which every exit path (success, failure, abort) runs before the
// unit goes idle. A pipette never goes idle with a dirty tip.
//
// # Configuration
//
// Per-state tunables (timeouts, pressure modes, pulse sequences) come
// from a StateConfig loaded once at startup and shared read-only across
// all machine instances. Parameters are per state type, not per unit.
//
// # Failure Model
//
// Hardware faults and per-state timeouts terminate the attempt through
// the aborted path and are recorded in the attempt result; they never
// propagate to other units. Detection, seal, and break-in failures are
// ordinary outcomes (detect-failed, no-seal, sealed-no-breakin), not
// errors.
package patch
