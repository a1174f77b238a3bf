package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rodolfodiegosilva/iot-system-api/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	cfg := config.MQTTConfig{Enabled: true, QoS: 1}
	cfg.Broker.Host = "127.0.0.1"
	cfg.Broker.Port = 1883
	cfg.Broker.ClientID = fmt.Sprintf("iotsystem-test-%d", time.Now().UnixNano())
	cfg.Reconnect.InitialDelay = 1
	cfg.Reconnect.MaxDelay = 5
	return cfg
}

// requireBroker skips the test when no broker listens on the test address.
func requireBroker(t *testing.T) *Client {
	t.Helper()
	cfg := testConfig()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port), 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s:%d", cfg.Broker.Host, cfg.Broker.Port)
	}
	conn.Close()

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func disconnectedClient() *Client {
	return newClient(testConfig())
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceCommand", topics.DeviceCommand("DVC00001"), "iot/devices/DVC00001/command"},
		{"DeviceStatus", topics.DeviceStatus("DVC00001"), "iot/devices/DVC00001/status"},
		{"Event", topics.Event("device.updated"), "iot/events/device.updated"},
		{"SystemStatus", topics.SystemStatus(), "iot/system/status"},
		{"AllDeviceStatuses", topics.AllDeviceStatuses(), "iot/devices/+/status"},
		{"AllDeviceCommands", topics.AllDeviceCommands(), "iot/devices/+/command"},
		{"AllTopics", topics.AllTopics(), "iot/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestDeviceCodeFromTopic(t *testing.T) {
	tests := []struct {
		topic    string
		kind     string
		wantCode string
		wantOK   bool
	}{
		{"iot/devices/DVC00001/status", "status", "DVC00001", true},
		{"iot/devices/DVC00001/command", "command", "DVC00001", true},
		{"iot/devices/DVC00001/command", "status", "", false},
		{"iot/devices/DVC00001/status/extra", "status", "", false},
		{"iot/devices//status", "status", "", false},
		{"iot/devices/+/status", "status", "", false},
		{"iot/system/status", "status", "", false},
		{"other/devices/DVC00001/status", "status", "", false},
		{"", "status", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			code, ok := DeviceCodeFromTopic(tt.topic, tt.kind)
			if code != tt.wantCode || ok != tt.wantOK {
				t.Errorf("DeviceCodeFromTopic(%q, %q) = (%q, %v), want (%q, %v)",
					tt.topic, tt.kind, code, ok, tt.wantCode, tt.wantOK)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL(tls) = %q", got)
	}
}

func TestBrokerOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "core"
	cfg.Auth.Password = "secret"
	cfg.Broker.TLS = true

	po := brokerOptions(cfg)
	if po.ClientID != cfg.Broker.ClientID {
		t.Errorf("ClientID = %q, want %q", po.ClientID, cfg.Broker.ClientID)
	}
	if po.Username != "core" || po.Password != "secret" {
		t.Errorf("credentials = %q/%q", po.Username, po.Password)
	}
	if !po.AutoReconnect || !po.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
	if po.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v", po.MaxReconnectInterval)
	}
	if po.TLSConfig == nil || po.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("expected TLS 1.2 minimum")
	}
	if len(po.Servers) != 1 || po.Servers[0].Scheme != "ssl" {
		t.Errorf("Servers = %v", po.Servers)
	}
}

func TestNewClient_Options(t *testing.T) {
	cfg := testConfig()
	logger := &recordingLogger{}
	var hooked bool

	c := newClient(cfg,
		WithStatusTopic("site/plant-2/status"),
		WithLogger(logger),
		WithConnectHook(func() { hooked = true }),
	)
	if c.presence.topic != "site/plant-2/status" {
		t.Errorf("presence topic = %q", c.presence.topic)
	}
	if c.presence.clientID != cfg.Broker.ClientID || c.qos != 1 {
		t.Errorf("presence = %+v, qos = %d", c.presence, c.qos)
	}
	if c.log != logger {
		t.Error("WithLogger() not applied")
	}
	c.onConnect()
	if !hooked {
		t.Error("WithConnectHook() not applied")
	}

	d := newClient(cfg, WithStatusTopic(""), WithLogger(nil))
	if d.presence.topic != "iot/system/status" {
		t.Errorf("default presence topic = %q", d.presence.topic)
	}
	if _, ok := d.log.(nopLogger); !ok {
		t.Errorf("default logger = %T, want nopLogger", d.log)
	}
}

func TestPresence_Will(t *testing.T) {
	po := brokerOptions(testConfig())
	presence{topic: "iot/system/status", clientID: "iotsystem", qos: 1}.registerWill(po)

	if !po.WillEnabled || po.WillTopic != "iot/system/status" {
		t.Fatalf("will = %v %q", po.WillEnabled, po.WillTopic)
	}
	if !po.WillRetained || po.WillQos != 1 {
		t.Errorf("will retained=%v qos=%d", po.WillRetained, po.WillQos)
	}

	var rec presenceRecord
	if err := json.Unmarshal(po.WillPayload, &rec); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if rec.Status != statusOffline || rec.Reason != reasonLost || rec.ClientID != "iotsystem" {
		t.Errorf("will payload = %+v", rec)
	}
}

func TestPresence_Record(t *testing.T) {
	var rec presenceRecord
	if err := json.Unmarshal(presence{clientID: "core"}.record(statusOnline, ""), &rec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if rec.Status != "online" || rec.ClientID != "core" || rec.Reason != "" {
		t.Errorf("record = %+v", rec)
	}
	if _, err := time.Parse(time.RFC3339, rec.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", rec.Timestamp, err)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"bad qos", "iot/x", []byte("x"), 3, ErrInvalidQoS},
		{"oversized", "iot/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "iot/x", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishJSON_EncodingError(t *testing.T) {
	c := disconnectedClient()
	err := c.PublishJSON("iot/x", make(chan int), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := c.Subscribe("iot/x", 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 5) error = %v", err)
	}
	if err := c.Subscribe("iot/x", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}
	if err := c.Subscribe("iot/x", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if err := c.Unsubscribe("iot/x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.add(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add(msg) }

func (l *recordingLogger) add(msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, msg)
	l.mu.Unlock()
}

func TestDispatch_RecoversPanicAndLogsErrors(t *testing.T) {
	logger := &recordingLogger{}
	c := newClient(testConfig(), WithLogger(logger))

	c.dispatch(func(string, []byte) error { panic("boom") }, "iot/x", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "iot/x", nil)
	c.dispatch(func(string, []byte) error { return nil }, "iot/x", nil)

	if len(logger.lines) != 2 {
		t.Fatalf("logged %v, want 2 lines", logger.lines)
	}
	if logger.lines[0] != "MQTT handler panic recovered" {
		t.Errorf("first line = %q", logger.lines[0])
	}
}

func TestClose_NilClient(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	if err := disconnectedClient().HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestBroker_PublishSubscribeRoundTrip(t *testing.T) {
	client := requireBroker(t)

	topic := Topics{}.DeviceStatus(fmt.Sprintf("DVCT%d", time.Now().UnixNano()%100000))
	received := make(chan []byte, 1)
	err := client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		received <- payload
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(topic) {
		t.Error("HasSubscription() = false after Subscribe")
	}

	if err := client.PublishJSON(topic, map[string]string{"status": "ON"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"status":"ON"}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if err := client.Unsubscribe(topic); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topic) {
		t.Error("HasSubscription() = true after Unsubscribe")
	}
}

func TestBroker_HealthCheck(t *testing.T) {
	client := requireBroker(t)
	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
