package registry

import (
	"context"
	"time"
)

// Registry defines the interface for the bridge's device registry.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// Devices are keyed two ways: the hardware serial number is the stable
// identity used for lookup, and the ref (a generated id) is the handle
// every subsequent operation uses.
type Registry interface {
	// FindBySerial retrieves the ref for a device by hardware serial.
	// Returns ErrNotFound if no device with that serial exists.
	FindBySerial(ctx context.Context, serial string) (string, error)

	// CreateDevice registers a new device and returns its ref.
	// Returns ErrExists if a device with the same serial already exists.
	CreateDevice(ctx context.Context, serial string, meta DeviceMetadata) (string, error)

	// Get retrieves a device by ref.
	// Returns ErrNotFound if the ref does not exist.
	Get(ctx context.Context, ref string) (*Device, error)

	// List retrieves all registered devices.
	List(ctx context.Context) ([]Device, error)

	// GetValue returns the current status value for a device.
	GetValue(ctx context.Context, ref string) (string, error)

	// SetValue updates the status value for a device.
	SetValue(ctx context.Context, ref string, value string) error

	// SetRemoteID records the vendor's current numeric id for a device.
	// The vendor reassigns these on re-registration, so they are mutable.
	SetRemoteID(ctx context.Context, ref string, remoteID int64) error

	// SetAttention flags a device as needing attention (e.g. offline),
	// with a human-readable message.
	SetAttention(ctx context.Context, ref string, message string) error

	// ClearAttention removes the attention flag from a device.
	ClearAttention(ctx context.Context, ref string) error
}

// DeviceMetadata describes a device at creation time.
type DeviceMetadata struct {
	// Name is the human-readable device name.
	Name string

	// TypeName is the vendor's device type name.
	TypeName string

	// RemoteID is the vendor's numeric id at creation time.
	RemoteID int64

	// Commands lists the commands the device accepts (e.g. open, close).
	Commands []string

	// StatusValues lists the status values the device can report.
	StatusValues []string
}

// Device is a registered device.
type Device struct {
	// Ref is the registry handle, stable for the life of the record.
	Ref string

	// Serial is the hardware serial number, unique across the registry.
	Serial string

	// RemoteID is the vendor's current numeric id.
	RemoteID int64

	// Name is the human-readable device name.
	Name string

	// TypeName is the vendor's device type name.
	TypeName string

	// Value is the current status value (a door state display name).
	Value string

	// Attention is a non-empty message when the device needs attention.
	Attention string

	// Commands and StatusValues are the capability lists bound at creation.
	Commands     []string
	StatusValues []string

	CreatedAt time.Time
	UpdatedAt time.Time
}
