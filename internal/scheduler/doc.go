// Package scheduler runs one worker per pipette unit and arbitrates
// the resources they share.
//
// Each worker loops claim → patch → release → record: it claims the
// next compatible target from the queue, runs the unit's state machine,
// releases the target with its final state, and appends the attempt to
// the ledger. Units never wait on each other except at the shared
// resources: imaging access is mutually exclusive, and cross-well
// travel holds a per-lane reservation so pipettes cannot collide.
//
// A unit that fails repeatedly takes itself out of rotation after the
// configured failure limit; the remaining units keep working the queue.
package scheduler
