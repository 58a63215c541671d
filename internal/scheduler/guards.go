package scheduler

import (
	"context"
	"sync"

	"github.com/openpatch/autopatch-core/internal/rig"
)

// imagingGuard serializes access to the shared imaging device. It
// implements patch.Imaging; at most one snapshot is in flight at a time
// across all units.
type imagingGuard struct {
	sem    chan struct{}
	imager rig.Imager
}

func newImagingGuard(imager rig.Imager) *imagingGuard {
	return &imagingGuard{sem: make(chan struct{}, 1), imager: imager}
}

func (g *imagingGuard) Snapshot(ctx context.Context) (rig.Frame, error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return rig.Frame{}, ctx.Err()
	}
	defer func() { <-g.sem }()
	return g.imager.Snapshot(ctx)
}

// acquire takes the guard outside an attempt, for operator stage locks.
func (g *imagingGuard) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *imagingGuard) release() {
	<-g.sem
}

// laneGuard hands out exclusive travel-lane reservations. It implements
// patch.MotionGuard. Lanes are created on first use; a global gate lets
// an operator freeze all motion (stage lock) without touching the
// individual lanes.
type laneGuard struct {
	mu    sync.Mutex
	lanes map[string]chan struct{}
	gate  chan struct{} // closed while motion is allowed
}

func newLaneGuard() *laneGuard {
	gate := make(chan struct{})
	close(gate)
	return &laneGuard{lanes: make(map[string]chan struct{}), gate: gate}
}

// Reserve blocks until the lane is free and motion is not frozen. The
// returned release function must be called exactly once.
func (g *laneGuard) Reserve(ctx context.Context, lane string) (func(), error) {
	g.mu.Lock()
	gate := g.gate
	ch, ok := g.lanes[lane]
	if !ok {
		ch = make(chan struct{}, 1)
		g.lanes[lane] = ch
	}
	g.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// freeze stops new lane reservations until unfreeze. In-flight moves
// finish; the freeze only gates new travel.
func (g *laneGuard) freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.gate:
		g.gate = make(chan struct{})
	default:
		// already frozen
	}
}

func (g *laneGuard) unfreeze() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.gate:
		// already open
	default:
		close(g.gate)
	}
}
