// Package control is the controller's MQTT command surface.
//
// It subscribes to autopatch/command/+ and translates operator commands
// into calls on the target queue and scheduler:
//
//   - add_target: queue a candidate cell, given well-local coordinates
//   - promote_target: move a pending target to the front of its well
//   - start / stop: run or halt the scheduler's workers
//   - status: report unit, queue, and ledger state
//   - lock_stage / unlock_stage: reserve the stage and camera for
//     manual microscope use
//
// Each command carries a request_id; the handler publishes the outcome
// to autopatch/response/{request_id}. The handler also implements
// scheduler.Publisher, fanning unit status (retained) and attempt
// results out to their per-unit topics.
package control
