package control

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/openpatch/autopatch-core/internal/geometry"
	"github.com/openpatch/autopatch-core/internal/infrastructure/mqtt"
	"github.com/openpatch/autopatch-core/internal/ledger"
	"github.com/openpatch/autopatch-core/internal/patch"
	"github.com/openpatch/autopatch-core/internal/scheduler"
	"github.com/openpatch/autopatch-core/internal/target"
)

// fakeMQTT captures publishes and delivers messages to subscribers.
type fakeMQTT struct {
	mu        sync.Mutex
	published []publishedMsg
	handlers  map[string]mqtt.MessageHandler
}

type publishedMsg struct {
	topic    string
	payload  []byte
	retained bool
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMsg{topic, payload, retained})
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

// deliver pushes a message through the wildcard command subscription.
func (f *fakeMQTT) deliver(t *testing.T, topic string, payload []byte) error {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers["autopatch/command/+"]
	f.mu.Unlock()
	if !ok {
		t.Fatal("no command subscription registered")
	}
	return handler(topic, payload)
}

// lastPublished returns the most recent publish to a topic.
func (f *fakeMQTT) lastPublished(topic string) (publishedMsg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.published) - 1; i >= 0; i-- {
		if f.published[i].topic == topic {
			return f.published[i], true
		}
	}
	return publishedMsg{}, false
}

// fakeRunner records scheduler calls.
type fakeRunner struct {
	mu       sync.Mutex
	started  int
	stopped  int
	locked   int
	unlocked int
	startErr error
	status   []scheduler.UnitStatus
}

func (f *fakeRunner) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return f.startErr
}

func (f *fakeRunner) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeRunner) Status() []scheduler.UnitStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRunner) LockStage(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked++
	return nil
}

func (f *fakeRunner) UnlockStage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unlocked++
}

func testPlate() *geometry.Plate {
	return &geometry.Plate{
		Center: geometry.Position{X: 50e-3, Y: 50e-3, Z: 0},
		Wells: []geometry.Well{
			{ID: "A1", Offset: [2]float64{-10e-3, 0}, Radius: 3e-3},
			{ID: "A2", Offset: [2]float64{10e-3, 0}, Radius: 3e-3},
		},
	}
}

type handlerFixture struct {
	handler *Handler
	mqtt    *fakeMQTT
	runner  *fakeRunner
	queue   *target.Queue
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	fm := newFakeMQTT()
	fr := &fakeRunner{}
	queue := target.NewQueue([]string{"A1", "A2"})

	h, err := NewHandler(HandlerOptions{
		MQTT:   fm,
		Runner: fr,
		Queue:  queue,
		Ledger: ledger.NewMemoryRepository(),
		Plate:  testPlate(),
		QoS:    1,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &handlerFixture{handler: h, mqtt: fm, runner: fr, queue: queue}
}

// response unmarshals the response published for a request ID.
func (fx *handlerFixture) response(t *testing.T, requestID string) ResponseMessage {
	t.Helper()
	msg, ok := fx.mqtt.lastPublished("autopatch/response/" + requestID)
	if !ok {
		t.Fatalf("no response published for request %s", requestID)
	}
	var resp ResponseMessage
	if err := json.Unmarshal(msg.payload, &resp); err != nil {
		t.Fatalf("unmarshalling response: %v", err)
	}
	return resp
}

func TestHandler_AddTarget(t *testing.T) {
	fx := newHandlerFixture(t)

	payload := []byte(`{"request_id":"req-1","well_id":"A1","x":0.001,"y":-0.0005,"z":-0.00002}`)
	if err := fx.mqtt.deliver(t, "autopatch/command/add_target", payload); err != nil {
		t.Fatalf("add_target: %v", err)
	}

	resp := fx.response(t, "req-1")
	if !resp.Success {
		t.Fatalf("response not successful: %+v", resp.Error)
	}
	if fx.queue.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", fx.queue.PendingCount())
	}

	targets := fx.queue.Snapshot()
	tgt := targets[0]
	if tgt.WellID != "A1" {
		t.Errorf("well = %q, want A1", tgt.WellID)
	}
	// A1 centre is (0.04, 0.05); local offset applied on top.
	if math.Abs(tgt.Position.X-0.041) > 1e-12 || math.Abs(tgt.Position.Y-0.0495) > 1e-12 {
		t.Errorf("position = %+v", tgt.Position)
	}
	if math.Abs(tgt.Position.Z - -0.00002) > 1e-12 {
		t.Errorf("depth = %g, want -2e-5", tgt.Position.Z)
	}
}

func TestHandler_AddTargetUnknownWell(t *testing.T) {
	fx := newHandlerFixture(t)

	payload := []byte(`{"request_id":"req-2","well_id":"Z9"}`)
	err := fx.mqtt.deliver(t, "autopatch/command/add_target", payload)
	if !errors.Is(err, geometry.ErrUnknownWell) {
		t.Errorf("error = %v, want ErrUnknownWell", err)
	}

	resp := fx.response(t, "req-2")
	if resp.Success {
		t.Error("response successful for unknown well")
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeUnknownWell {
		t.Errorf("error code = %+v, want %s", resp.Error, ErrCodeUnknownWell)
	}
	if fx.queue.PendingCount() != 0 {
		t.Error("target queued despite unknown well")
	}
}

func TestHandler_AddTargetOutsideWell(t *testing.T) {
	fx := newHandlerFixture(t)

	// 5mm offset in a 3mm-radius well.
	payload := []byte(`{"request_id":"req-3","well_id":"A1","x":0.005}`)
	err := fx.mqtt.deliver(t, "autopatch/command/add_target", payload)
	if !errors.Is(err, geometry.ErrOutOfBounds) {
		t.Errorf("error = %v, want ErrOutOfBounds", err)
	}
}

func TestHandler_PromoteTarget(t *testing.T) {
	fx := newHandlerFixture(t)

	first := fx.queue.Add(target.Target{WellID: "A1", Position: geometry.Position{X: 0.04, Y: 0.05}})
	second := fx.queue.Add(target.Target{WellID: "A1", Position: geometry.Position{X: 0.041, Y: 0.05}})

	payload := []byte(`{"request_id":"req-4","target_id":"` + second.ID + `"}`)
	if err := fx.mqtt.deliver(t, "autopatch/command/promote_target", payload); err != nil {
		t.Fatalf("promote_target: %v", err)
	}

	claimed, ok := fx.queue.Claim("pip1", []string{"A1"})
	if !ok {
		t.Fatal("no target claimable")
	}
	if claimed.ID != second.ID {
		t.Errorf("claimed %s, want promoted %s (first was %s)", claimed.ID, second.ID, first.ID)
	}
}

func TestHandler_PromoteUnknownTarget(t *testing.T) {
	fx := newHandlerFixture(t)

	payload := []byte(`{"request_id":"req-5","target_id":"tgt-missing"}`)
	err := fx.mqtt.deliver(t, "autopatch/command/promote_target", payload)
	if !errors.Is(err, target.ErrNotFound) {
		t.Errorf("error = %v, want target.ErrNotFound", err)
	}

	resp := fx.response(t, "req-5")
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Errorf("error code = %+v, want %s", resp.Error, ErrCodeNotFound)
	}
}

func TestHandler_StartStop(t *testing.T) {
	fx := newHandlerFixture(t)

	if err := fx.mqtt.deliver(t, "autopatch/command/start", []byte(`{"request_id":"req-6"}`)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if fx.runner.started != 1 {
		t.Errorf("started = %d, want 1", fx.runner.started)
	}

	if err := fx.mqtt.deliver(t, "autopatch/command/stop", []byte(`{"request_id":"req-7"}`)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if fx.runner.stopped != 1 {
		t.Errorf("stopped = %d, want 1", fx.runner.stopped)
	}
}

func TestHandler_StartConflict(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.runner.startErr = scheduler.ErrAlreadyRunning

	err := fx.mqtt.deliver(t, "autopatch/command/start", []byte(`{"request_id":"req-8"}`))
	if !errors.Is(err, scheduler.ErrAlreadyRunning) {
		t.Errorf("error = %v, want ErrAlreadyRunning", err)
	}

	resp := fx.response(t, "req-8")
	if resp.Error == nil || resp.Error.Code != ErrCodeConflict {
		t.Errorf("error code = %+v, want %s", resp.Error, ErrCodeConflict)
	}
}

func TestHandler_Status(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.runner.status = []scheduler.UnitStatus{
		{UnitID: "pip1", State: patch.StateIdle, Patched: 3},
	}
	fx.queue.Add(target.Target{WellID: "A1", Position: geometry.Position{X: 0.04, Y: 0.05}})

	if err := fx.mqtt.deliver(t, "autopatch/command/status", []byte(`{"request_id":"req-9"}`)); err != nil {
		t.Fatalf("status: %v", err)
	}

	resp := fx.response(t, "req-9")
	if !resp.Success {
		t.Fatalf("status failed: %+v", resp.Error)
	}
	if pending, ok := resp.Data["pending"].(float64); !ok || pending != 1 {
		t.Errorf("pending = %v, want 1", resp.Data["pending"])
	}
	units, ok := resp.Data["units"].([]any)
	if !ok || len(units) != 1 {
		t.Fatalf("units = %v", resp.Data["units"])
	}
}

func TestHandler_StageLock(t *testing.T) {
	fx := newHandlerFixture(t)

	if err := fx.mqtt.deliver(t, "autopatch/command/lock_stage", []byte(`{"request_id":"req-10"}`)); err != nil {
		t.Fatalf("lock_stage: %v", err)
	}
	if fx.runner.locked != 1 {
		t.Errorf("locked = %d, want 1", fx.runner.locked)
	}

	if err := fx.mqtt.deliver(t, "autopatch/command/unlock_stage", []byte(`{"request_id":"req-11"}`)); err != nil {
		t.Fatalf("unlock_stage: %v", err)
	}
	if fx.runner.unlocked != 1 {
		t.Errorf("unlocked = %d, want 1", fx.runner.unlocked)
	}
}

func TestHandler_UnknownAction(t *testing.T) {
	fx := newHandlerFixture(t)

	err := fx.mqtt.deliver(t, "autopatch/command/self_destruct", []byte(`{"request_id":"req-12"}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("error = %v, want ErrUnknownAction", err)
	}
}

func TestHandler_NoResponseWithoutRequestID(t *testing.T) {
	fx := newHandlerFixture(t)

	if err := fx.mqtt.deliver(t, "autopatch/command/status", []byte(`{}`)); err != nil {
		t.Fatalf("status: %v", err)
	}

	fx.mqtt.mu.Lock()
	defer fx.mqtt.mu.Unlock()
	for _, msg := range fx.mqtt.published {
		if msg.topic == "autopatch/response/" {
			t.Errorf("response published without request ID: %s", msg.topic)
		}
	}
}

func TestHandler_PublishStatus(t *testing.T) {
	fx := newHandlerFixture(t)

	fx.handler.PublishStatus(scheduler.UnitStatus{
		UnitID: "pip1", State: patch.StateSeal, TargetID: "tgt-0001",
	})

	msg, ok := fx.mqtt.lastPublished("autopatch/status/pip1")
	if !ok {
		t.Fatal("no status published")
	}
	if !msg.retained {
		t.Error("unit status not retained")
	}

	var status scheduler.UnitStatus
	if err := json.Unmarshal(msg.payload, &status); err != nil {
		t.Fatalf("unmarshalling status: %v", err)
	}
	if status.State != patch.StateSeal || status.TargetID != "tgt-0001" {
		t.Errorf("status = %+v", status)
	}
}

func TestHandler_PublishResult(t *testing.T) {
	fx := newHandlerFixture(t)

	fx.handler.PublishResult(ledger.Attempt{
		ID:      "att-0001",
		UnitID:  "pip1",
		Outcome: patch.OutcomePatched,
	})

	msg, ok := fx.mqtt.lastPublished("autopatch/result/pip1")
	if !ok {
		t.Fatal("no result published")
	}
	if msg.retained {
		t.Error("attempt result should not be retained")
	}

	var attempt ledger.Attempt
	if err := json.Unmarshal(msg.payload, &attempt); err != nil {
		t.Fatalf("unmarshalling result: %v", err)
	}
	if attempt.Outcome != patch.OutcomePatched {
		t.Errorf("outcome = %s, want %s", attempt.Outcome, patch.OutcomePatched)
	}
}
