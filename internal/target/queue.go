package target

import (
	"sync"
	"time"
)

// Queue holds pending targets grouped per well and hands them out to
// claimants atomically.
//
// Thread Safety: all methods are safe for concurrent use. Claim and
// Release are serialized by a single mutex, which gives claim/release
// compare-and-set semantics: a pending target transitions to assigned
// exactly once.
type Queue struct {
	mu sync.Mutex

	// wellOrder fixes the scan order for fair-by-well distribution.
	wellOrder []string

	// next indexes wellOrder; each successful claim advances it past
	// the well served, so claims rotate across wells instead of
	// draining the first configured well.
	next int

	// byWell holds target IDs per well, FIFO order (front = oldest).
	byWell map[string][]string

	targets map[string]*Target
}

// NewQueue creates a queue distributing over the given wells. The slice
// order is the claim scan order.
func NewQueue(wellOrder []string) *Queue {
	byWell := make(map[string][]string, len(wellOrder))
	for _, w := range wellOrder {
		byWell[w] = nil
	}
	return &Queue{
		wellOrder: append([]string(nil), wellOrder...),
		byWell:    byWell,
		targets:   make(map[string]*Target),
	}
}

// Add appends a new pending target to its well's queue and returns a
// copy of the stored record. A missing ID is generated.
func (q *Queue) Add(t Target) Target {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t.ID == "" {
		t.ID = GenerateID()
	}
	t.State = StatePending
	t.AssignedUnit = ""
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	stored := t
	q.targets[stored.ID] = &stored
	q.byWell[stored.WellID] = append(q.byWell[stored.WellID], stored.ID)
	return t
}

// Promote moves a pending target to the front of its well's queue,
// implementing operator re-ordering. Returns ErrNotFound for unknown
// IDs and ErrTerminal for targets that already finished.
func (q *Queue) Promote(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.targets[id]
	if !ok {
		return ErrNotFound
	}
	if t.State.Terminal() {
		return ErrTerminal
	}

	ids := q.byWell[t.WellID]
	for i, tid := range ids {
		if tid == id {
			copy(ids[1:i+1], ids[:i])
			ids[0] = id
			return nil
		}
	}
	return nil // already claimed; nothing to reorder
}

// Claim atomically takes the oldest pending target from the first of
// the claimant's reachable wells that has one, marks it assigned, and
// returns a copy. The boolean is false when nothing is pending.
//
// Wells are scanned in the configured order starting one past the well
// served by the previous claim, so consecutive claims rotate across
// wells (fair-by-well) instead of draining one well at a time. Within
// a well, targets are handed out FIFO.
func (q *Queue) Claim(unitID string, reachable []string) (Target, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	reach := make(map[string]bool, len(reachable))
	for _, w := range reachable {
		reach[w] = true
	}

	for i := range q.wellOrder {
		idx := (q.next + i) % len(q.wellOrder)
		well := q.wellOrder[idx]
		if !reach[well] {
			continue
		}
		for _, id := range q.byWell[well] {
			t := q.targets[id]
			if t.State != StatePending {
				continue
			}
			t.State = StateAssigned
			t.AssignedUnit = unitID
			q.next = (idx + 1) % len(q.wellOrder)
			return *t, true
		}
	}
	return Target{}, false
}

// Start marks a claimed target in-progress. Returns ErrNotAssigned if
// the target was not claimed by the given unit.
func (q *Queue) Start(id, unitID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.targets[id]
	if !ok {
		return ErrNotFound
	}
	if t.State != StateAssigned || t.AssignedUnit != unitID {
		return ErrNotAssigned
	}
	t.State = StateInProgress
	return nil
}

// Release moves a claimed target to a terminal state and drops it from
// its well's pending order. Terminal targets are immutable afterwards.
func (q *Queue) Release(id string, final State) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.targets[id]
	if !ok {
		return ErrNotFound
	}
	if t.State.Terminal() {
		return ErrTerminal
	}
	if t.AssignedUnit == "" {
		return ErrNotAssigned
	}

	t.State = final
	t.AssignedUnit = ""

	ids := q.byWell[t.WellID]
	for i, tid := range ids {
		if tid == id {
			q.byWell[t.WellID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a copy of a target by ID.
func (q *Queue) Get(id string) (Target, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.targets[id]
	if !ok {
		return Target{}, ErrNotFound
	}
	return *t, nil
}

// PendingCount returns the number of targets still pending.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, t := range q.targets {
		if t.State == StatePending {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all targets, for status reporting.
func (q *Queue) Snapshot() []Target {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Target, 0, len(q.targets))
	for _, well := range q.wellOrder {
		for _, id := range q.byWell[well] {
			out = append(out, *q.targets[id])
		}
	}
	// Include terminal targets, which are no longer in the well order.
	seen := make(map[string]bool, len(out))
	for _, t := range out {
		seen[t.ID] = true
	}
	for _, t := range q.targets {
		if !seen[t.ID] {
			out = append(out, *t)
		}
	}
	return out
}
