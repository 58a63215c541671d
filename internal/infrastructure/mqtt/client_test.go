package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/openpatch/autopatch-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "autopatch-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a client that was never connected, for
// exercising validation paths without a broker.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		got  string
		want string
	}{
		{topics.UnitStatus("pip1"), "autopatch/status/pip1"},
		{topics.Result("pip1"), "autopatch/result/pip1"},
		{topics.Command("add_target"), "autopatch/command/add_target"},
		{topics.Response("req-abc123"), "autopatch/response/req-abc123"},
		{topics.SystemStatus(), "autopatch/system/status"},
		{topics.AllUnitStatus(), "autopatch/status/+"},
		{topics.AllResults(), "autopatch/result/+"},
		{topics.AllCommands(), "autopatch/command/+"},
		{topics.AllTopics(), "autopatch/#"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "rig"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "autopatch-test" {
		t.Errorf("client ID = %q, want autopatch-test", opts.ClientID)
	}
	if opts.Username != "rig" || opts.Password != "secret" {
		t.Error("credentials not applied to client options")
	}
	if !opts.AutoReconnect {
		t.Error("auto-reconnect not enabled")
	}
}

func TestBuildClientOptions_TLSScheme(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("broker scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLS config not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "autopatch-test")

	if opts.WillTopic != "autopatch/system/status" {
		t.Errorf("will topic = %q, want autopatch/system/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will message not retained")
	}

	var payload struct {
		Status   string `json:"status"`
		ClientID string `json:"client_id"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not valid JSON: %v", err)
	}
	if payload.Status != "offline" || payload.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", payload)
	}
	if payload.ClientID != "autopatch-test" {
		t.Errorf("will client_id = %q, want autopatch-test", payload.ClientID)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online struct {
		Status    string `json:"status"`
		ClientID  string `json:"client_id"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(buildOnlinePayload("autopatch-test")), &online); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}
	if online.Status != "online" || online.ClientID != "autopatch-test" {
		t.Errorf("online payload = %+v", online)
	}
	if online.Timestamp == "" {
		t.Error("online payload missing timestamp")
	}

	offline := buildOfflinePayload("autopatch-test")
	if !strings.Contains(offline, `"status":"offline"`) ||
		!strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("autopatch/status/pip1", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}

	oversized := make([]byte, maxPayloadSize+1)
	if err := c.Publish("autopatch/status/pip1", oversized, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}

	if err := c.Publish("autopatch/status/pip1", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	handler := func(topic string, payload []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("autopatch/command/+", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("autopatch/command/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("autopatch/command/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected subscribe error = %v, want ErrNotConnected", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failed subscribes, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("autopatch/command/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected unsubscribe error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnectedClient()

	if c.HasSubscription("autopatch/command/+") {
		t.Error("HasSubscription() = true on fresh client")
	}

	c.subscriptions["autopatch/command/+"] = subscription{
		topic: "autopatch/command/+",
		qos:   1,
	}
	if !c.HasSubscription("autopatch/command/+") {
		t.Error("HasSubscription() = false for tracked topic")
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", c.SubscriptionCount())
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestSetLogger(t *testing.T) {
	c := disconnectedClient()

	logger := &captureLogger{}
	c.SetLogger(logger)
	if c.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}

	c.SetLogger(nil)
	if c.getLogger() != nil {
		t.Error("getLogger() != nil after SetLogger(nil)")
	}
}

type captureLogger struct {
	errors []string
	warns  []string
}

func (l *captureLogger) Error(msg string, args ...any) { l.errors = append(l.errors, msg) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.warns = append(l.warns, msg) }
