package mqtt

import (
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-myq-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "bridge"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker URL, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want %q", got, "tcp://127.0.0.1:1883")
	}
	if opts.ClientID != "graylogic-myq-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "graylogic-myq-test")
	}
	if opts.Username != "bridge" {
		t.Errorf("Username = %q, want %q", opts.Username, "bridge")
	}
	if !opts.AutoReconnect {
		t.Error("expected AutoReconnect to be enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("broker scheme = %q, want %q", got, "ssl")
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config to be set")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	configureLWT(opts, "myq")

	if !opts.WillEnabled {
		t.Fatal("expected LWT to be enabled")
	}
	if opts.WillTopic != "graylogic/health/myq" {
		t.Errorf("WillTopic = %q, want %q", opts.WillTopic, "graylogic/health/myq")
	}
	if !opts.WillRetained {
		t.Error("expected LWT to be retained")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %q, want offline status", opts.WillPayload)
	}
	if !strings.Contains(string(opts.WillPayload), `"protocol":"myq"`) {
		t.Errorf("WillPayload = %q, want protocol field", opts.WillPayload)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.connected {
		t.Error("connected should be false for uninitialised client")
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "BridgeState",
			builder: func() string {
				return Topics{}.BridgeState("myq", "GW12345")
			},
			expected: "graylogic/state/myq/GW12345",
		},
		{
			name: "BridgeCommand",
			builder: func() string {
				return Topics{}.BridgeCommand("myq", "GW12345")
			},
			expected: "graylogic/command/myq/GW12345",
		},
		{
			name: "BridgeAck",
			builder: func() string {
				return Topics{}.BridgeAck("myq", "GW12345")
			},
			expected: "graylogic/ack/myq/GW12345",
		},
		{
			name: "BridgeHealth",
			builder: func() string {
				return Topics{}.BridgeHealth("myq")
			},
			expected: "graylogic/health/myq",
		},
		{
			name: "BridgeCommands wildcard",
			builder: func() string {
				return Topics{}.BridgeCommands("myq")
			},
			expected: "graylogic/command/myq/+",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.builder()
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", tt.name, result, tt.expected)
			}
		})
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{}

	if err := client.Publish("", []byte("x"), 1, false); err != ErrInvalidTopic {
		t.Errorf("Publish() empty topic error = %v, want ErrInvalidTopic", err)
	}

	if err := client.Publish("t", []byte("x"), 3, false); err != ErrInvalidQoS {
		t.Errorf("Publish() qos 3 error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}

	if err := client.Subscribe("", 1, func(string, []byte) error { return nil }); err != ErrInvalidTopic {
		t.Errorf("Subscribe() empty topic error = %v, want ErrInvalidTopic", err)
	}

	if err := client.Subscribe("t", 3, func(string, []byte) error { return nil }); err != ErrInvalidQoS {
		t.Errorf("Subscribe() qos 3 error = %v, want ErrInvalidQoS", err)
	}
}
