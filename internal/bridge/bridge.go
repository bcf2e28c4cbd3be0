package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-myq/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-myq/internal/myq"
)

// Bridge operation constants.
const (
	// commandTimeout bounds the cloud round-trip for a door command.
	commandTimeout = 30 * time.Second

	// syncTimeout bounds one catalog fetch plus reconciliation.
	syncTimeout = 60 * time.Second

	// resyncDelay is how long after a successful command the bridge
	// waits before forcing a catalog sync, so the vendor has time to
	// reflect the new door state.
	resyncDelay = time.Second
)

// Logger is the interface for structured logging within the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// VendorClient is the interface to the MyQ cloud.
// *myq.Client satisfies it; tests substitute a fake.
type VendorClient interface {
	// FetchDevices retrieves the filtered device catalog.
	FetchDevices(ctx context.Context) ([]myq.Device, error)

	// MoveDoor commands a door to the desired state.
	MoveDoor(ctx context.Context, deviceID int64, desired myq.DoorState) error

	// LastUpdated reports when the catalog was last refreshed.
	LastUpdated() time.Time

	// Status returns the current session status.
	Status() (myq.SessionStatus, string)

	// Stats returns operational statistics.
	Stats() myq.Stats
}

// HistoryRecorder persists door state observations for trend analysis.
// Optional: if nil, the bridge operates without history.
type HistoryRecorder interface {
	// RecordDoorState records one door state observation.
	RecordDoorState(serial, door string, online bool, ts time.Time)
}

// Bridge orchestrates the MyQ cloud to MQTT translation.
// It handles:
//   - Receiving door commands from Core via MQTT and dispatching them
//     to the cloud
//   - Polling the cloud catalog and publishing state changes to MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	client     VendorClient
	mqttClient MQTTClient
	reconciler *Reconciler
	poller     *Poller
	health     *HealthReporter
	history    HistoryRecorder // Optional

	topics mqtt.Topics

	// Shutdown coordination
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// Options holds configuration for creating a bridge.
type Options struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// PollInterval is the catalog poll interval.
	PollInterval time.Duration

	// Client is the MyQ cloud client.
	Client VendorClient

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Registry is the device registry for adoption and state persistence.
	Registry DeviceRegistry

	// History is optional door state history persistence.
	// If nil, the bridge operates without history.
	History HistoryRecorder

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a bridge instance. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("vendor client is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		client:     opts.Client,
		mqttClient: opts.MQTTClient,
		history:    opts.History,
		ctx:        ctx,
		ctxCancel:  cancel,
		logger:     opts.Logger,
	}

	b.reconciler = NewReconciler(opts.Registry)
	b.poller = NewPoller(PollerConfig{
		Interval:    opts.PollInterval,
		Sync:        b.syncOnce,
		LastUpdated: opts.Client.LastUpdated,
	})
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Topic:     b.topics.BridgeHealth(protocolID),
		Publisher: opts.MQTTClient,
		Session:   opts.Client,
	})

	if opts.Logger != nil {
		b.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation: subscribes to command topics, runs an
// initial catalog sync, and starts the poller and health reporter.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.BridgeCommands(protocolID)
	if err := b.mqttClient.Subscribe(commandTopic, 1, b.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.poller.Start(b.ctx)
	b.health.Start(b.ctx)

	// Seed state before the first poll fires.
	b.poller.TriggerSync("startup")

	b.logInfo("bridge started", "poll_interval", b.poller.Interval().String())
	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.poller.Stop()
		b.health.Stop()
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// SetPollInterval changes the catalog poll interval at runtime.
func (b *Bridge) SetPollInterval(d time.Duration) error {
	return b.poller.SetInterval(d)
}

// TriggerSync requests an immediate catalog sync.
func (b *Bridge) TriggerSync(reason string) {
	b.poller.TriggerSync(reason)
}

// syncOnce performs one catalog fetch, reconciles the snapshot, and
// publishes state changes. Runs under the poller's overlap guard.
func (b *Bridge) syncOnce(ctx context.Context, reason string) {
	fetchCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	devices, err := b.client.FetchDevices(fetchCtx)
	if err != nil {
		b.logError("catalog fetch failed", err, "reason", reason)
		// Surface the degraded session state promptly.
		if pubErr := b.health.PublishNow(); pubErr != nil {
			b.logError("failed to publish health", pubErr)
		}
		return
	}

	b.health.SetDeviceCount(len(devices))

	changes := b.reconciler.Reconcile(fetchCtx, devices)
	for _, change := range changes {
		b.publishState(change)

		if b.history != nil {
			b.history.RecordDoorState(change.Serial, change.Door, change.Online, time.Now().UTC())
		}
	}

	if len(changes) > 0 {
		b.logInfo("catalog sync complete",
			"reason", reason,
			"devices", len(devices),
			"changes", len(changes))
	} else {
		b.logDebug("catalog sync complete, no changes",
			"reason", reason,
			"devices", len(devices))
	}
}

// publishState publishes a retained state message for one door.
func (b *Bridge) publishState(change StateChange) {
	msg := NewStateMessage(change.Serial, change.Door, change.Online)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := b.topics.BridgeState(protocolID, change.Serial)
	if err := b.mqttClient.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err, "serial", change.Serial)
	}
}

// handleCommand processes a door command from Core.
// Topic form: graylogic/command/myq/{serial}
func (b *Bridge) handleCommand(topic string, payload []byte) {
	serial := serialFromTopic(topic)
	if serial == "" {
		b.logError("invalid command topic", fmt.Errorf("topic: %s", topic))
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err, "serial", serial)
		return
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"serial", serial,
		"command", cmd.Command)

	desired, err := desiredState(cmd.Command)
	if err != nil {
		b.publishAckError(cmd, serial, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command))
		return
	}

	remoteID, ok := b.reconciler.RemoteID(serial)
	if !ok {
		b.publishAckError(cmd, serial, ErrCodeUnknownDevice,
			fmt.Sprintf("device %s not in catalog", serial))
		return
	}

	// Accepted means handed to the cloud, not that the door moved.
	b.publishAck(cmd, serial, AckAccepted)

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.client.MoveDoor(ctx, remoteID, desired); err != nil {
		code := ErrCodeDeviceUnreachable
		if errors.Is(err, myq.ErrUnauthorized) {
			code = ErrCodeUnauthorized
		}
		b.publishAckError(cmd, serial, code, err.Error())
		return
	}

	// Re-read the catalog shortly after so the state topic reflects
	// the door starting to move.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-b.ctx.Done():
		case <-time.After(resyncDelay):
			b.poller.TriggerSync("command")
		}
	}()
}

// desiredState maps a command name to the target door state.
func desiredState(command string) (myq.DoorState, error) {
	switch command {
	case "open":
		return myq.DoorStateOpen, nil
	case "close":
		return myq.DoorStateClosed, nil
	default:
		return 0, ErrInvalidCommand
	}
}

// serialFromTopic extracts the serial from a command topic.
func serialFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(cmd CommandMessage, serial string, status AckStatus) {
	ack := NewAckMessage(cmd, serial, status)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := b.topics.BridgeAck(protocolID, serial)
	if err := b.mqttClient.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (b *Bridge) publishAckError(cmd CommandMessage, serial, code, message string) {
	ack := NewAckError(cmd, serial, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack error", err)
		return
	}

	topic := b.topics.BridgeAck(protocolID, serial)
	if err := b.mqttClient.Publish(topic, payload, 1, false); err != nil {
		b.logError("failed to publish ack error", err)
	}

	b.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message),
		"serial", serial)
}

// BridgeMetrics contains metrics data for the API status endpoint.
type BridgeMetrics struct {
	Connected      bool
	Session        string
	SessionMessage string
	Stats          myq.Stats
	DevicesManaged int
	LastUpdated    time.Time
	PollInterval   time.Duration
}

// GetMetrics returns current bridge metrics for the API status endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	status, msg := b.client.Status()

	b.health.deviceCountMu.RLock()
	deviceCount := b.health.deviceCount
	b.health.deviceCountMu.RUnlock()

	return BridgeMetrics{
		Connected:      b.mqttClient.IsConnected(),
		Session:        string(status),
		SessionMessage: msg,
		Stats:          b.client.Stats(),
		DevicesManaged: deviceCount,
		LastUpdated:    b.client.LastUpdated(),
		PollInterval:   b.poller.Interval(),
	}
}

// SetLogger sets the logger for the bridge and its components.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.reconciler != nil {
		b.reconciler.SetLogger(logger)
	}
	if b.poller != nil {
		b.poller.SetLogger(logger)
	}
	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
