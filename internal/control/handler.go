package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openpatch/autopatch-core/internal/geometry"
	"github.com/openpatch/autopatch-core/internal/infrastructure/mqtt"
	"github.com/openpatch/autopatch-core/internal/ledger"
	"github.com/openpatch/autopatch-core/internal/scheduler"
	"github.com/openpatch/autopatch-core/internal/target"
)

// Timeouts for command execution.
const (
	// stageLockTimeout bounds how long lock_stage waits for in-flight
	// moves to finish and the imaging guard to drain.
	stageLockTimeout = 30 * time.Second

	// statusTimeout bounds the ledger summary query for status commands.
	statusTimeout = 5 * time.Second

	// statusInterval is how often unit statuses are republished between
	// state transitions, so dashboards recover after a broker restart
	// drops the retained messages.
	statusInterval = 5 * time.Second
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Runner is the scheduler surface the handler drives.
// Satisfied by *scheduler.Scheduler.
type Runner interface {
	Start(ctx context.Context) error
	Stop() error
	Status() []scheduler.UnitStatus
	LockStage(ctx context.Context) error
	UnlockStage()
}

// Logger is the optional logging interface.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// HandlerOptions holds dependencies for creating a Handler.
type HandlerOptions struct {
	// MQTT is the broker client. Required.
	MQTT MQTTClient

	// Runner drives the scheduler. Required.
	Runner Runner

	// Queue is the shared target queue. Required.
	Queue *target.Queue

	// Ledger supplies attempt summaries for status commands. Required.
	Ledger ledger.Repository

	// Plate validates well IDs and converts well-local coordinates.
	// Required.
	Plate *geometry.Plate

	// QoS for published responses, statuses, and results.
	QoS byte

	// Logger is optional structured logging.
	Logger Logger
}

// Handler routes operator commands from MQTT to the queue and
// scheduler, and fans scheduler events back out.
//
// It implements scheduler.Publisher.
type Handler struct {
	mqtt   MQTTClient
	runner Runner
	queue  *target.Queue
	ledger ledger.Repository
	plate  *geometry.Plate
	qos    byte

	// ctx is the handler-level context; scheduler Start inherits it so
	// workers stop when the controller shuts down.
	ctx context.Context

	logger   Logger
	loggerMu sync.RWMutex
}

var _ scheduler.Publisher = (*Handler)(nil)

// NewHandler creates a command handler. Call Start to begin receiving
// commands.
func NewHandler(opts HandlerOptions) (*Handler, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("scheduler runner is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("target queue is required")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger repository is required")
	}
	if opts.Plate == nil {
		return nil, fmt.Errorf("plate geometry is required")
	}

	h := &Handler{
		mqtt:   opts.MQTT,
		runner: opts.Runner,
		queue:  opts.Queue,
		ledger: opts.Ledger,
		plate:  opts.Plate,
		qos:    opts.QoS,
		logger: opts.Logger,
	}
	if h.logger == nil {
		h.logger = noopLogger{}
	}
	return h, nil
}

// SetLogger replaces the handler's logger.
func (h *Handler) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	if logger == nil {
		logger = noopLogger{}
	}
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *Handler) log() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

// Start subscribes to the command topics. The context is retained:
// scheduler start commands derive from it, so cancelling it stops the
// workers on shutdown.
func (h *Handler) Start(ctx context.Context) error {
	h.ctx = ctx

	commandTopic := mqtt.Topics{}.AllCommands()
	if err := h.mqtt.Subscribe(commandTopic, h.qos, h.handleMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	h.log().Info("subscribed to commands", "topic", commandTopic)

	go h.statusLoop(ctx)
	return nil
}

// statusLoop republishes every unit's status on a fixed interval until
// the context is cancelled. Transitions still publish immediately via
// PublishStatus.
func (h *Handler) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, status := range h.runner.Status() {
				h.PublishStatus(status)
			}
		}
	}
}

// handleMessage routes an incoming command by its topic's action
// segment.
func (h *Handler) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	action := parts[len(parts)-1]

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			h.log().Warn("unparseable command payload", "topic", topic, "error", err)
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	h.log().Info("received command",
		"action", action, "request_id", cmd.RequestID, "source", cmd.Source)

	var data map[string]any
	var err error
	switch action {
	case "add_target":
		data, err = h.addTarget(cmd)
	case "promote_target":
		data, err = h.promoteTarget(cmd)
	case "start":
		err = h.runner.Start(h.ctx)
	case "stop":
		err = h.runner.Stop()
	case "status":
		data, err = h.status()
	case "lock_stage":
		err = h.lockStage()
	case "unlock_stage":
		h.runner.UnlockStage()
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	h.respond(cmd, data, err)
	return err
}

// addTarget validates the well-local coordinates and queues a target.
func (h *Handler) addTarget(cmd CommandMessage) (map[string]any, error) {
	if cmd.WellID == "" {
		return nil, fmt.Errorf("%w: well_id is required", ErrInvalidPayload)
	}

	pos, err := h.plate.WellToPlate(cmd.WellID, cmd.X, cmd.Y)
	if err != nil {
		return nil, fmt.Errorf("placing target in well %s: %w", cmd.WellID, err)
	}
	pos = pos.Add(0, 0, cmd.Z)

	t := h.queue.Add(target.Target{
		WellID:   cmd.WellID,
		Position: pos,
	})
	h.log().Info("target queued", "target_id", t.ID, "well", t.WellID)

	return map[string]any{"target": t}, nil
}

// promoteTarget moves a pending target to the front of its well.
func (h *Handler) promoteTarget(cmd CommandMessage) (map[string]any, error) {
	if cmd.TargetID == "" {
		return nil, fmt.Errorf("%w: target_id is required", ErrInvalidPayload)
	}
	if err := h.queue.Promote(cmd.TargetID); err != nil {
		return nil, fmt.Errorf("promoting target %s: %w", cmd.TargetID, err)
	}
	return map[string]any{"target_id": cmd.TargetID}, nil
}

// status reports unit, queue, and ledger state.
func (h *Handler) status() (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	summary, err := h.ledger.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger summary: %w", err)
	}

	return map[string]any{
		"units":    h.runner.Status(),
		"pending":  h.queue.PendingCount(),
		"targets":  h.queue.Snapshot(),
		"outcomes": summary,
	}, nil
}

// lockStage freezes motion lanes and reserves imaging for manual use.
func (h *Handler) lockStage() error {
	ctx, cancel := context.WithTimeout(context.Background(), stageLockTimeout)
	defer cancel()
	return h.runner.LockStage(ctx)
}

// respond publishes the command outcome to the response topic. Commands
// without a request ID get no response.
func (h *Handler) respond(cmd CommandMessage, data map[string]any, cmdErr error) {
	if cmd.RequestID == "" {
		return
	}

	resp := ResponseMessage{
		RequestID: cmd.RequestID,
		Timestamp: time.Now().UTC(),
		Success:   cmdErr == nil,
		Data:      data,
	}
	if cmdErr != nil {
		resp.Error = &ResponseError{
			Code:    errorCode(cmdErr),
			Message: cmdErr.Error(),
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		h.log().Error("marshalling response", "request_id", cmd.RequestID, "error", err)
		return
	}

	topic := mqtt.Topics{}.Response(cmd.RequestID)
	if err := h.mqtt.Publish(topic, payload, h.qos, false); err != nil {
		h.log().Error("publishing response", "request_id", cmd.RequestID, "error", err)
	}
}

// errorCode maps command errors to response error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return ErrCodeInvalidPayload
	case errors.Is(err, ErrUnknownAction):
		return ErrCodeInvalidPayload
	case errors.Is(err, geometry.ErrUnknownWell), errors.Is(err, geometry.ErrOutOfBounds):
		return ErrCodeUnknownWell
	case errors.Is(err, target.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, target.ErrTerminal),
		errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, scheduler.ErrNotRunning):
		return ErrCodeConflict
	default:
		return ErrCodeInternal
	}
}

// PublishStatus sends a unit status snapshot to its retained status
// topic. Part of scheduler.Publisher.
func (h *Handler) PublishStatus(status scheduler.UnitStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		h.log().Error("marshalling unit status", "unit", status.UnitID, "error", err)
		return
	}
	topic := mqtt.Topics{}.UnitStatus(status.UnitID)
	if err := h.mqtt.Publish(topic, payload, h.qos, true); err != nil {
		h.log().Warn("publishing unit status", "unit", status.UnitID, "error", err)
	}
}

// PublishResult sends a finished attempt to the unit's result topic.
// Part of scheduler.Publisher.
func (h *Handler) PublishResult(attempt ledger.Attempt) {
	payload, err := json.Marshal(attempt)
	if err != nil {
		h.log().Error("marshalling attempt result", "attempt_id", attempt.ID, "error", err)
		return
	}
	topic := mqtt.Topics{}.Result(attempt.UnitID)
	if err := h.mqtt.Publish(topic, payload, h.qos, false); err != nil {
		h.log().Warn("publishing attempt result", "attempt_id", attempt.ID, "error", err)
	}
}
