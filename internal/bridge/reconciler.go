package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/nerrad567/gray-logic-myq/internal/myq"
	"github.com/nerrad567/gray-logic-myq/internal/registry"
)

// offlineAttention is the attention message recorded for offline doors.
const offlineAttention = "device offline"

// DeviceRegistry is the subset of registry operations the reconciler
// needs. This allows mocking in tests; *registry.SQLiteRegistry
// satisfies it.
type DeviceRegistry interface {
	FindBySerial(ctx context.Context, serial string) (string, error)
	CreateDevice(ctx context.Context, serial string, meta registry.DeviceMetadata) (string, error)
	SetValue(ctx context.Context, ref string, value string) error
	SetRemoteID(ctx context.Context, ref string, remoteID int64) error
	SetAttention(ctx context.Context, ref string, message string) error
	ClearAttention(ctx context.Context, ref string) error
}

// StateChange describes a door whose observed state differs from the
// last reconciled state. The bridge publishes one state message per
// change.
type StateChange struct {
	Ref    string
	Serial string
	Door   string
	Online bool
}

// Reconciler maps vendor catalog snapshots onto the device registry.
//
// The serial number is the durable identity: refs are resolved through
// a serial→ref cache, falling back to registry lookup and finally to
// adoption of never-seen devices. Vendor numeric ids are volatile and
// are rebound whenever the cloud reassigns them.
//
// Thread Safety: all methods are safe for concurrent use.
type Reconciler struct {
	registry DeviceRegistry

	mu             sync.Mutex
	refBySerial    map[string]string
	remoteBySerial map[string]int64
	doorBySerial   map[string]string
	onlineBySerial map[string]bool

	logger   Logger
	loggerMu sync.RWMutex
}

// NewReconciler creates a reconciler backed by the given registry.
func NewReconciler(reg DeviceRegistry) *Reconciler {
	return &Reconciler{
		registry:       reg,
		refBySerial:    make(map[string]string),
		remoteBySerial: make(map[string]int64),
		doorBySerial:   make(map[string]string),
		onlineBySerial: make(map[string]bool),
	}
}

// Reconcile applies one catalog snapshot to the registry and returns
// the doors whose state changed since the previous snapshot.
//
// Per-device registry failures are logged and skipped so one bad
// record cannot block updates for the rest of the catalog.
func (r *Reconciler) Reconcile(ctx context.Context, devices []myq.Device) []StateChange {
	var changes []StateChange

	for _, dev := range devices {
		ref, err := r.resolveRef(ctx, dev)
		if err != nil {
			r.logError("failed to resolve device", err, "serial", dev.SerialNumber)
			continue
		}

		r.rebindRemoteID(ctx, ref, dev)

		door := dev.DoorState.String()
		doorChanged := r.updateDoor(ctx, ref, dev.SerialNumber, door)
		onlineChanged := r.updateOnline(ctx, ref, dev.SerialNumber, dev.Online)

		if doorChanged || onlineChanged {
			changes = append(changes, StateChange{
				Ref:    ref,
				Serial: dev.SerialNumber,
				Door:   door,
				Online: dev.Online,
			})
		}
	}

	return changes
}

// RemoteID returns the vendor numeric id last seen for a serial.
func (r *Reconciler) RemoteID(serial string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.remoteBySerial[serial]
	return id, ok
}

// Ref returns the registry ref cached for a serial.
func (r *Reconciler) Ref(serial string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.refBySerial[serial]
	return ref, ok
}

// resolveRef finds or creates the registry record for a device.
// Resolution order: serial→ref cache, registry lookup, adoption.
func (r *Reconciler) resolveRef(ctx context.Context, dev myq.Device) (string, error) {
	r.mu.Lock()
	ref, ok := r.refBySerial[dev.SerialNumber]
	r.mu.Unlock()
	if ok {
		return ref, nil
	}

	ref, err := r.registry.FindBySerial(ctx, dev.SerialNumber)
	if errors.Is(err, registry.ErrNotFound) {
		ref, err = r.registry.CreateDevice(ctx, dev.SerialNumber, deviceMetadata(dev))
		if err != nil {
			return "", err
		}
		r.logInfo("adopted new device",
			"serial", dev.SerialNumber,
			"ref", ref,
			"type", dev.TypeName)
	} else if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.refBySerial[dev.SerialNumber] = ref
	r.mu.Unlock()
	return ref, nil
}

// rebindRemoteID updates the stored vendor id when the cloud has
// reassigned it since the last snapshot.
func (r *Reconciler) rebindRemoteID(ctx context.Context, ref string, dev myq.Device) {
	r.mu.Lock()
	prev, known := r.remoteBySerial[dev.SerialNumber]
	r.remoteBySerial[dev.SerialNumber] = dev.DeviceID
	r.mu.Unlock()

	if !known || prev == dev.DeviceID {
		return
	}

	if err := r.registry.SetRemoteID(ctx, ref, dev.DeviceID); err != nil {
		r.logError("failed to rebind remote id", err, "serial", dev.SerialNumber)
		return
	}
	r.logInfo("remote id rebound",
		"serial", dev.SerialNumber,
		"old", prev,
		"new", dev.DeviceID)
}

// updateDoor writes the door state to the registry when it differs
// from the cached value. Returns true if the state changed.
func (r *Reconciler) updateDoor(ctx context.Context, ref, serial, door string) bool {
	r.mu.Lock()
	prev, known := r.doorBySerial[serial]
	r.mu.Unlock()

	if known && prev == door {
		return false
	}

	if err := r.registry.SetValue(ctx, ref, door); err != nil {
		r.logError("failed to set door state", err, "serial", serial)
		return false
	}

	r.mu.Lock()
	r.doorBySerial[serial] = door
	r.mu.Unlock()
	return true
}

// updateOnline flags or clears attention on online transitions.
// The cache is seeded with the inverse of the first observation so a
// door that starts offline raises attention immediately.
func (r *Reconciler) updateOnline(ctx context.Context, ref, serial string, online bool) bool {
	r.mu.Lock()
	prev, known := r.onlineBySerial[serial]
	if !known {
		prev = !online
	}
	r.mu.Unlock()

	if prev == online {
		return false
	}

	var err error
	if online {
		err = r.registry.ClearAttention(ctx, ref)
	} else {
		err = r.registry.SetAttention(ctx, ref, offlineAttention)
	}
	if err != nil {
		r.logError("failed to update attention", err, "serial", serial)
		return false
	}

	r.mu.Lock()
	r.onlineBySerial[serial] = online
	r.mu.Unlock()

	if online {
		r.logInfo("device back online", "serial", serial)
	} else {
		r.logWarn("device went offline", "serial", serial)
	}
	return true
}

// deviceMetadata builds the registry metadata for an adopted device.
func deviceMetadata(dev myq.Device) registry.DeviceMetadata {
	commands := make([]string, 0, 2)
	if dev.CanOpen {
		commands = append(commands, "open")
	}
	if dev.CanClose {
		commands = append(commands, "close")
	}
	if len(commands) == 0 {
		// Unattended flags are absent on some firmware; assume both.
		commands = []string{"open", "close"}
	}

	return registry.DeviceMetadata{
		Name:     dev.SerialNumber,
		TypeName: dev.TypeName,
		RemoteID: dev.DeviceID,
		Commands: commands,
		StatusValues: []string{
			"open", "closed", "stopped",
			"opening", "closing", "partially_open",
		},
	}
}

// SetLogger sets the logger for the reconciler.
func (r *Reconciler) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Reconciler) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

func (r *Reconciler) logInfo(msg string, keysAndValues ...any) {
	if l := r.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (r *Reconciler) logWarn(msg string, keysAndValues ...any) {
	if l := r.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (r *Reconciler) logError(msg string, err error, keysAndValues ...any) {
	if l := r.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
