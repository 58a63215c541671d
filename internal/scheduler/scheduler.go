package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openpatch/autopatch-core/internal/ledger"
	"github.com/openpatch/autopatch-core/internal/patch"
	"github.com/openpatch/autopatch-core/internal/rig"
	"github.com/openpatch/autopatch-core/internal/target"
)

// Logger is the minimal logging interface the scheduler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher receives status and result events as they happen, typically
// to fan out over MQTT. Implementations must not block.
type Publisher interface {
	PublishStatus(status UnitStatus)
	PublishResult(attempt ledger.Attempt)
}

// UnitSpec describes one pipette unit to register with the scheduler.
type UnitSpec struct {
	Info        patch.UnitInfo
	Manipulator rig.Manipulator

	// Reachable lists the well IDs this unit's manipulator can physically
	// reach. The worker only claims targets in these wells.
	Reachable []string
}

// UnitStatus is a point-in-time view of one unit, for status commands
// and the status topic.
type UnitStatus struct {
	UnitID   string      `json:"unit_id"`
	State    patch.State `json:"state"`
	TargetID string      `json:"target_id,omitempty"`
	Attempts int         `json:"attempts"`
	Patched  int         `json:"patched"`
	Failures int         `json:"consecutive_failures"`
	Retired  bool        `json:"retired"`
}

// Config contains scheduler tuning options.
type Config struct {
	// MaxConsecutiveFailures retires a unit after this many
	// hardware-error attempts in a row. Zero disables retirement.
	MaxConsecutiveFailures int

	// IdlePollInterval is how often an idle worker re-checks the queue.
	IdlePollInterval time.Duration

	// RecordTimeout bounds the ledger write after each attempt.
	RecordTimeout time.Duration

	// SafeMove routes cross-well travel through exclusive lane
	// reservations. Disabled, units move without lane arbitration and
	// LockStage gates only the imaging device.
	SafeMove bool
}

// Deps are the scheduler's collaborators. Queue and Ledger are
// required; the rest default to no-ops.
type Deps struct {
	Queue     *target.Queue
	Ledger    ledger.Repository
	Imager    rig.Imager
	Recording patch.RecordingService
	Telemetry patch.Telemetry
	Publisher Publisher
}

// unitWorker pairs a machine with its claim constraints and counters.
type unitWorker struct {
	id        string
	machine   *patch.Machine
	reachable []string

	mu       sync.Mutex
	targetID string
	attempts int
	patched  int
	failures int
	retired  bool
}

// Scheduler owns the worker pool and the shared-resource guards.
type Scheduler struct {
	cfg     Config
	deps    Deps
	workers []*unitWorker
	imaging *imagingGuard
	lanes   *laneGuard

	mu          sync.Mutex
	logger      Logger
	running     bool
	stageLocked bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New builds the scheduler and one state machine per unit, wiring every
// machine through the shared imaging and lane guards. Workers are
// registered in the given unit order; queue ties resolve in that order.
func New(cfg Config, stateCfg *patch.StateConfig, units []UnitSpec, deps Deps) (*Scheduler, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("%w: target queue is required", patch.ErrInvalidConfig)
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("%w: ledger repository is required", patch.ErrInvalidConfig)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("%w: at least one unit is required", patch.ErrInvalidConfig)
	}
	if cfg.IdlePollInterval <= 0 {
		cfg.IdlePollInterval = 250 * time.Millisecond
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 10 * time.Second
	}

	s := &Scheduler{
		cfg:    cfg,
		deps:   deps,
		lanes:  newLaneGuard(),
		logger: noopLogger{},
	}
	if deps.Imager != nil {
		s.imaging = newImagingGuard(deps.Imager)
	}

	for _, u := range units {
		machineDeps := patch.Deps{
			Manipulator: u.Manipulator,
			Recording:   deps.Recording,
			Telemetry:   deps.Telemetry,
		}
		if cfg.SafeMove {
			machineDeps.Motion = s.lanes
		}
		if s.imaging != nil {
			machineDeps.Imaging = s.imaging
		}
		m, err := patch.New(u.Info, stateCfg, machineDeps)
		if err != nil {
			return nil, fmt.Errorf("building machine for unit %s: %w", u.Info.ID, err)
		}
		s.workers = append(s.workers, &unitWorker{
			id:        u.Info.ID,
			machine:   m,
			reachable: u.Reachable,
		})
	}
	return s, nil
}

// SetLogger sets the logger for the scheduler and its machines.
func (s *Scheduler) SetLogger(logger Logger) {
	s.mu.Lock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
	s.mu.Unlock()
	for _, w := range s.workers {
		w.machine.SetLogger(logger)
	}
}

func (s *Scheduler) log() Logger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// SetPublisher wires the event publisher. The publisher is usually
// built after the scheduler (it needs the scheduler to serve status
// commands), so it is attached here rather than in Deps. Must be
// called before Start.
func (s *Scheduler) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.deps.Publisher = p
	s.mu.Unlock()
}

// Start launches one worker goroutine per unit. Workers start in unit
// order and run until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	s.log().Info("scheduler starting", "units", len(s.workers))
	for _, w := range s.workers {
		s.wg.Add(1)
		go s.runWorker(runCtx, w)
	}
	return nil
}

// Stop cancels all workers and waits for in-flight attempts to finish
// their clean/rinse tails.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.log().Info("scheduler stopped")
	return nil
}

// Status returns a snapshot of every unit, in registration order.
func (s *Scheduler) Status() []UnitStatus {
	out := make([]UnitStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.status())
	}
	return out
}

// LockStage freezes all pipette travel and takes exclusive imaging
// access, letting an operator drive the stage and camera manually.
// In-flight moves finish first; no new travel starts until UnlockStage.
// With safe_move disabled travel is not lane-arbitrated, so the lock
// covers only the imaging device.
func (s *Scheduler) LockStage(ctx context.Context) error {
	s.mu.Lock()
	if s.stageLocked {
		s.mu.Unlock()
		return nil
	}
	s.stageLocked = true
	s.mu.Unlock()

	s.lanes.freeze()
	if s.imaging != nil {
		if err := s.imaging.acquire(ctx); err != nil {
			s.lanes.unfreeze()
			s.mu.Lock()
			s.stageLocked = false
			s.mu.Unlock()
			return err
		}
	}
	s.log().Info("stage locked for manual control")
	return nil
}

// UnlockStage releases a stage lock. Safe to call when not locked.
func (s *Scheduler) UnlockStage() {
	s.mu.Lock()
	locked := s.stageLocked
	s.stageLocked = false
	s.mu.Unlock()
	if !locked {
		return
	}
	if s.imaging != nil {
		s.imaging.release()
	}
	s.lanes.unfreeze()
	s.log().Info("stage unlocked")
}

// runWorker is the claim → patch → release → record loop for one unit.
func (s *Scheduler) runWorker(ctx context.Context, w *unitWorker) {
	defer s.wg.Done()
	log := s.log()
	log.Info("unit worker started", "unit", w.id, "wells", len(w.reachable))

	for {
		if ctx.Err() != nil || w.isRetired() {
			log.Info("unit worker stopping", "unit", w.id, "retired", w.isRetired())
			return
		}
		tgt, ok := s.deps.Queue.Claim(w.id, w.reachable)
		if !ok {
			if err := sleepCtx(ctx, s.cfg.IdlePollInterval); err != nil {
				return
			}
			continue
		}
		s.runAttempt(ctx, w, tgt)
	}
}

func (s *Scheduler) runAttempt(ctx context.Context, w *unitWorker, tgt target.Target) {
	log := s.log()
	attemptID := ledger.NewAttemptID()
	if err := s.deps.Queue.Start(tgt.ID, w.id); err != nil {
		log.Error("starting claimed target", "unit", w.id, "target", tgt.ID, "error", err)
		// The claim must not stay assigned forever; fail the target so
		// the queue can drain.
		if relErr := s.deps.Queue.Release(tgt.ID, target.StateFailed); relErr != nil {
			log.Error("releasing unstartable target", "unit", w.id, "target", tgt.ID, "error", relErr)
		}
		return
	}
	w.setTarget(tgt.ID)
	defer w.setTarget("")
	s.publishStatus(w)

	started := time.Now().UTC()
	res := w.machine.Run(ctx, attemptID, tgt)
	finished := time.Now().UTC()

	finalState := target.StateFailed
	if res.Outcome == patch.OutcomePatched {
		finalState = target.StateSucceeded
	}
	if err := s.deps.Queue.Release(tgt.ID, finalState); err != nil {
		log.Error("releasing target", "unit", w.id, "target", tgt.ID, "error", err)
	}

	attempt := ledger.Attempt{
		ID:         attemptID,
		UnitID:     w.id,
		TargetID:   tgt.ID,
		WellID:     tgt.WellID,
		Outcome:    res.Outcome,
		States:     res.States,
		Diagnostic: res.Diagnostic,
		FrameID:    res.FrameID,
		StartedAt:  started,
		FinishedAt: finished,
	}
	// Record on a detached context so a shutdown mid-write never loses
	// the attempt.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RecordTimeout)
	defer cancel()
	if err := s.deps.Ledger.Record(recordCtx, &attempt); err != nil {
		log.Error("recording attempt", "unit", w.id, "attempt", attemptID, "error", err)
	}

	w.recordOutcome(res.Outcome)
	if limit := s.cfg.MaxConsecutiveFailures; limit > 0 && w.consecutiveFailures() >= limit {
		w.retire()
		log.Warn("unit retired after repeated hardware errors",
			"unit", w.id, "failures", w.consecutiveFailures())
	}
	s.publishStatus(w)
	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishResult(attempt)
	}
}

func (s *Scheduler) publishStatus(w *unitWorker) {
	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishStatus(w.status())
	}
}

func (w *unitWorker) status() UnitStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return UnitStatus{
		UnitID:   w.id,
		State:    w.machine.State(),
		TargetID: w.targetID,
		Attempts: w.attempts,
		Patched:  w.patched,
		Failures: w.failures,
		Retired:  w.retired,
	}
}

func (w *unitWorker) setTarget(id string) {
	w.mu.Lock()
	w.targetID = id
	w.mu.Unlock()
}

func (w *unitWorker) recordOutcome(outcome patch.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	switch outcome {
	case patch.OutcomePatched:
		w.patched++
		w.failures = 0
	case patch.OutcomeHardwareError:
		w.failures++
	default:
		// Ordinary biological failures do not count against the unit.
		w.failures = 0
	}
}

func (w *unitWorker) consecutiveFailures() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures
}

func (w *unitWorker) retire() {
	w.mu.Lock()
	w.retired = true
	w.mu.Unlock()
}

func (w *unitWorker) isRetired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.retired
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
