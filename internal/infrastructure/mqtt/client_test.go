package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hwaldner/avrbridge/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     1883,
			ClientID: "avrbridge-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"device state", topics.DeviceState("avr-1"), "avrbridge/avr-1/state"},
		{"device availability", topics.DeviceAvailability("avr-1"), "avrbridge/avr-1/availability"},
		{"device command", topics.DeviceCommand("avr-1"), "avrbridge/avr-1/set"},
		{"system status", topics.SystemStatus(), "avrbridge/system/status"},
		{"all device commands", topics.AllDeviceCommands(), "avrbridge/+/set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestDeviceIDFromCommandTopic(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		want  string
	}{
		{"valid", "avrbridge/avr-1/set", "avr-1"},
		{"uuid id", "avrbridge/0b1f9c3e-2d7a-4a64-9c4e-9f1d2b3c4d5e/set", "0b1f9c3e-2d7a-4a64-9c4e-9f1d2b3c4d5e"},
		{"wrong suffix", "avrbridge/avr-1/state", ""},
		{"wrong prefix", "homeassistant/avr-1/set", ""},
		{"missing id", "avrbridge//set", ""},
		{"too many segments", "avrbridge/avr-1/set/extra", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeviceIDFromCommandTopic(tt.topic); got != tt.want {
				t.Errorf("DeviceIDFromCommandTopic(%q) = %q, want %q", tt.topic, got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://broker.local:1883" {
		t.Errorf("broker URL = %q, want tcp://broker.local:1883", got)
	}
	if opts.ClientID != "avrbridge-test" {
		t.Errorf("client ID = %q", opts.ClientID)
	}
	if opts.Username != "bridge" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.CleanSession {
		t.Error("expected clean session")
	}
	if !opts.AutoReconnect {
		t.Error("expected auto-reconnect")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://broker.local:8883" {
		t.Errorf("broker URL = %q, want ssl://broker.local:8883", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS min version = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestBuildClientOptionsNoAuth(t *testing.T) {
	opts := buildClientOptions(testMQTTConfig())
	if opts.Username != "" {
		t.Errorf("unexpected username %q", opts.Username)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testMQTTConfig())
	configureLWT(opts, "avrbridge-test")

	if !opts.WillEnabled {
		t.Fatal("expected will to be enabled")
	}
	if opts.WillTopic != "avrbridge/system/status" {
		t.Errorf("will topic = %q", opts.WillTopic)
	}
	if opts.WillQos != 1 {
		t.Errorf("will qos = %d, want 1", opts.WillQos)
	}
	if !opts.WillRetained {
		t.Error("expected will to be retained")
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if payload["status"] != "offline" || payload["reason"] != "unexpected_disconnect" {
		t.Errorf("unexpected will payload: %v", payload)
	}
	if payload["client_id"] != "avrbridge-test" {
		t.Errorf("will client_id = %q", payload["client_id"])
	}
}

func TestStatusPayloads(t *testing.T) {
	var online map[string]string
	if err := json.Unmarshal([]byte(buildOnlinePayload("c1")), &online); err != nil {
		t.Fatalf("online payload is not JSON: %v", err)
	}
	if online["status"] != "online" || online["client_id"] != "c1" {
		t.Errorf("unexpected online payload: %v", online)
	}
	if online["timestamp"] == "" {
		t.Error("online payload missing timestamp")
	}

	var offline map[string]string
	if err := json.Unmarshal([]byte(buildOfflinePayload("c1")), &offline); err != nil {
		t.Fatalf("offline payload is not JSON: %v", err)
	}
	if offline["status"] != "offline" || offline["reason"] != "graceful_shutdown" {
		t.Errorf("unexpected offline payload: %v", offline)
	}
}

// Validation paths run before any broker I/O, so a zero Client is enough.
func TestPublishValidation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 0, ErrInvalidTopic},
		{"invalid qos", "avrbridge/avr-1/state", []byte("x"), 3, ErrInvalidQoS},
		{"oversize payload", "avrbridge/avr-1/state", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "avrbridge/avr-1/state", []byte("x"), 1, ErrNotConnected},
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

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	handler := func(_ string, _ []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v", err)
	}
	if err := c.Subscribe("avrbridge/+/set", 9, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: got %v", err)
	}
	if err := c.Subscribe("avrbridge/+/set", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v", err)
	}
	if err := c.Subscribe("avrbridge/+/set", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("failed subscribe left %d tracked subscriptions", c.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v", err)
	}
	if err := c.Unsubscribe("avrbridge/+/set"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v", err)
	}
}

func TestCloseNilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := &Client{}

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v", err)
	}
}

type recordingLogger struct {
	errors   []string
	warnings []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warnings = append(l.warnings, msg) }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestWrapHandlerRecoversPanic(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(_ string, _ []byte) error {
		panic("boom")
	})

	// Must not panic.
	wrapped(nil, &fakeMessage{topic: "avrbridge/avr-1/set", payload: []byte("{}")})

	if len(logger.errors) != 1 {
		t.Fatalf("expected 1 logged error, got %d", len(logger.errors))
	}
	if !strings.Contains(logger.errors[0], "panic") {
		t.Errorf("unexpected log message %q", logger.errors[0])
	}
}

func TestWrapHandlerLogsHandlerError(t *testing.T) {
	logger := &recordingLogger{}
	c := &Client{}
	c.SetLogger(logger)

	wrapped := c.wrapHandler(func(_ string, _ []byte) error {
		return errors.New("decode failed")
	})

	wrapped(nil, &fakeMessage{topic: "avrbridge/avr-1/set", payload: []byte("nope")})

	if len(logger.warnings) != 1 {
		t.Fatalf("expected 1 logged warning, got %d", len(logger.warnings))
	}
}
