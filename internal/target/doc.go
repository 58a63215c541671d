// Package target provides the queue of pending patch targets.
//
// Operators add candidate cell locations; the scheduler's unit workers
// claim them. Claiming is atomic: a target moves pending → assigned
// under a single lock, so concurrent claimants can never double-assign.
// Once a target reaches a terminal state (succeeded/failed) it is
// immutable.
//
// Distribution is fair-by-well: a claim scans the claimant's reachable
// wells in configured well order and takes the oldest pending target in
// the first well that has one. Operators can promote a target to the
// front of its well's queue.
package target
