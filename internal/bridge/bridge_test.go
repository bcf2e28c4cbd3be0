package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-myq/internal/myq"
)

// mockMQTT records publishes and captures subscription handlers.
type mockMQTT struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]func(topic string, payload []byte)
	connected bool
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{
		handlers:  make(map[string]func(string, []byte)),
		connected: true,
	}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool { return m.connected }

// messagesOn returns all publishes to a topic.
func (m *mockMQTT) messagesOn(topic string) []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMessage
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeVendor is a VendorClient backed by a fixed catalog.
type fakeVendor struct {
	mu       sync.Mutex
	devices  []myq.Device
	fetchErr error
	moveErr  error
	moves    []moveCall
	updated  time.Time
	status   myq.SessionStatus
}

type moveCall struct {
	deviceID int64
	desired  myq.DoorState
}

func (f *fakeVendor) FetchDevices(context.Context) ([]myq.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.updated = time.Now()
	return f.devices, nil
}

func (f *fakeVendor) MoveDoor(_ context.Context, deviceID int64, desired myq.DoorState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.moveErr != nil {
		return f.moveErr
	}
	f.moves = append(f.moves, moveCall{deviceID, desired})
	return nil
}

func (f *fakeVendor) LastUpdated() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updated
}

func (f *fakeVendor) Status() (myq.SessionStatus, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == "" {
		return myq.StatusOK, ""
	}
	return f.status, "session trouble"
}

func (f *fakeVendor) Stats() myq.Stats { return myq.Stats{} }

func newTestBridge(t *testing.T, vendor *fakeVendor, mqttClient *mockMQTT) *Bridge {
	t.Helper()

	b, err := New(Options{
		BridgeID:     "myq-test",
		Version:      "test",
		PollInterval: time.Hour,
		Client:       vendor,
		MQTTClient:   mqttClient,
		Registry:     newFakeRegistry(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

func TestNew_Validation(t *testing.T) {
	vendor := &fakeVendor{}
	mqttClient := newMockMQTT()

	if _, err := New(Options{MQTTClient: mqttClient, Registry: newFakeRegistry()}); err == nil {
		t.Error("New() without vendor client should fail")
	}
	if _, err := New(Options{Client: vendor, Registry: newFakeRegistry()}); err == nil {
		t.Error("New() without MQTT client should fail")
	}
	if _, err := New(Options{Client: vendor, MQTTClient: mqttClient}); err == nil {
		t.Error("New() without registry should fail")
	}
}

func TestStart_SubscribesToCommands(t *testing.T) {
	mqttClient := newMockMQTT()
	b := newTestBridge(t, &fakeVendor{}, mqttClient)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	mqttClient.mu.Lock()
	_, ok := mqttClient.handlers["graylogic/command/myq/+"]
	mqttClient.mu.Unlock()
	if !ok {
		t.Error("bridge did not subscribe to graylogic/command/myq/+")
	}
}

func TestSyncOnce_PublishesRetainedStateChanges(t *testing.T) {
	mqttClient := newMockMQTT()
	vendor := &fakeVendor{
		devices: []myq.Device{testDevice("GW0001", 111, myq.DoorStateClosed, true)},
	}
	b := newTestBridge(t, vendor, mqttClient)

	b.syncOnce(context.Background(), "test")

	msgs := mqttClient.messagesOn("graylogic/state/myq/GW0001")
	if len(msgs) != 1 {
		t.Fatalf("state publishes = %d, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("state message should be retained")
	}

	var state StateMessage
	if err := json.Unmarshal(msgs[0].payload, &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.State["door"] != "closed" {
		t.Errorf("door = %v, want closed", state.State["door"])
	}
	if state.Protocol != "myq" {
		t.Errorf("protocol = %q, want myq", state.Protocol)
	}

	// Identical snapshot: nothing new published.
	b.syncOnce(context.Background(), "test")
	if got := len(mqttClient.messagesOn("graylogic/state/myq/GW0001")); got != 1 {
		t.Errorf("state publishes after identical sync = %d, want 1", got)
	}
}

func TestHandleCommand_Open(t *testing.T) {
	mqttClient := newMockMQTT()
	vendor := &fakeVendor{
		devices: []myq.Device{testDevice("GW0001", 111, myq.DoorStateClosed, true)},
	}
	b := newTestBridge(t, vendor, mqttClient)

	// Seed the reconciler with the catalog so the serial is known.
	b.syncOnce(context.Background(), "test")

	cmd := CommandMessage{ID: "cmd-1", Timestamp: time.Now(), Command: "open"}
	payload, _ := json.Marshal(&cmd)
	b.handleCommand("graylogic/command/myq/GW0001", payload)

	vendor.mu.Lock()
	moves := append([]moveCall(nil), vendor.moves...)
	vendor.mu.Unlock()
	if len(moves) != 1 {
		t.Fatalf("moves = %d, want 1", len(moves))
	}
	if moves[0].deviceID != 111 || moves[0].desired != myq.DoorStateOpen {
		t.Errorf("move = %+v, want device 111 to open", moves[0])
	}

	acks := mqttClient.messagesOn("graylogic/ack/myq/GW0001")
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Status != AckAccepted || ack.CommandID != "cmd-1" {
		t.Errorf("ack = %+v, want accepted for cmd-1", ack)
	}
}

func TestHandleCommand_UnknownSerial(t *testing.T) {
	mqttClient := newMockMQTT()
	b := newTestBridge(t, &fakeVendor{}, mqttClient)

	cmd := CommandMessage{ID: "cmd-2", Timestamp: time.Now(), Command: "open"}
	payload, _ := json.Marshal(&cmd)
	b.handleCommand("graylogic/command/myq/GW9999", payload)

	acks := mqttClient.messagesOn("graylogic/ack/myq/GW9999")
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	json.Unmarshal(acks[0].payload, &ack)
	if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != ErrCodeUnknownDevice {
		t.Errorf("ack = %+v, want failed with UNKNOWN_DEVICE", ack)
	}
}

func TestHandleCommand_InvalidCommand(t *testing.T) {
	mqttClient := newMockMQTT()
	vendor := &fakeVendor{
		devices: []myq.Device{testDevice("GW0001", 111, myq.DoorStateClosed, true)},
	}
	b := newTestBridge(t, vendor, mqttClient)
	b.syncOnce(context.Background(), "test")

	cmd := CommandMessage{ID: "cmd-3", Timestamp: time.Now(), Command: "toggle"}
	payload, _ := json.Marshal(&cmd)
	b.handleCommand("graylogic/command/myq/GW0001", payload)

	if len(vendor.moves) != 0 {
		t.Errorf("moves = %d, want 0 for invalid command", len(vendor.moves))
	}

	acks := mqttClient.messagesOn("graylogic/ack/myq/GW0001")
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	json.Unmarshal(acks[0].payload, &ack)
	if ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
		t.Errorf("ack error = %+v, want INVALID_COMMAND", ack.Error)
	}
}

func TestHandleCommand_MoveFailure(t *testing.T) {
	mqttClient := newMockMQTT()
	vendor := &fakeVendor{
		devices: []myq.Device{testDevice("GW0001", 111, myq.DoorStateClosed, true)},
		moveErr: myq.ErrServiceDown,
	}
	b := newTestBridge(t, vendor, mqttClient)
	b.syncOnce(context.Background(), "test")

	cmd := CommandMessage{ID: "cmd-4", Timestamp: time.Now(), Command: "close"}
	payload, _ := json.Marshal(&cmd)
	b.handleCommand("graylogic/command/myq/GW0001", payload)

	// Accepted ack first, then the failure ack.
	acks := mqttClient.messagesOn("graylogic/ack/myq/GW0001")
	if len(acks) != 2 {
		t.Fatalf("acks = %d, want 2 (accepted then failed)", len(acks))
	}
	var failed AckMessage
	json.Unmarshal(acks[1].payload, &failed)
	if failed.Status != AckFailed || failed.Error == nil ||
		failed.Error.Code != ErrCodeDeviceUnreachable {
		t.Errorf("second ack = %+v, want failed with DEVICE_UNREACHABLE", failed)
	}
}

func TestHandleCommand_UnauthorizedCode(t *testing.T) {
	mqttClient := newMockMQTT()
	vendor := &fakeVendor{
		devices: []myq.Device{testDevice("GW0001", 111, myq.DoorStateClosed, true)},
		moveErr: myq.ErrUnauthorized,
	}
	b := newTestBridge(t, vendor, mqttClient)
	b.syncOnce(context.Background(), "test")

	cmd := CommandMessage{ID: "cmd-5", Timestamp: time.Now(), Command: "close"}
	payload, _ := json.Marshal(&cmd)
	b.handleCommand("graylogic/command/myq/GW0001", payload)

	acks := mqttClient.messagesOn("graylogic/ack/myq/GW0001")
	if len(acks) != 2 {
		t.Fatalf("acks = %d, want 2", len(acks))
	}
	var failed AckMessage
	json.Unmarshal(acks[1].payload, &failed)
	if failed.Error == nil || failed.Error.Code != ErrCodeUnauthorized {
		t.Errorf("ack error = %+v, want UNAUTHORIZED", failed.Error)
	}
}

func TestSerialFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"graylogic/command/myq/GW0001", "GW0001"},
		{"graylogic/command/myq/", ""},
		{"nodelimiter", ""},
	}

	for _, tt := range tests {
		if got := serialFromTopic(tt.topic); got != tt.want {
			t.Errorf("serialFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestGetMetrics(t *testing.T) {
	mqttClient := newMockMQTT()
	vendor := &fakeVendor{
		devices: []myq.Device{testDevice("GW0001", 111, myq.DoorStateClosed, true)},
	}
	b := newTestBridge(t, vendor, mqttClient)
	b.syncOnce(context.Background(), "test")

	m := b.GetMetrics()
	if !m.Connected {
		t.Error("Connected = false, want true")
	}
	if m.Session != "ok" {
		t.Errorf("Session = %q, want ok", m.Session)
	}
	if m.DevicesManaged != 1 {
		t.Errorf("DevicesManaged = %d, want 1", m.DevicesManaged)
	}
}
