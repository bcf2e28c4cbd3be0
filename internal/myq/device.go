package myq

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DoorState represents a door position as reported by the vendor.
type DoorState int

// Vendor door state codes.
const (
	DoorStateOpen      DoorState = 1
	DoorStateClosed    DoorState = 2
	DoorStateStopped   DoorState = 3
	DoorStateGoingUp   DoorState = 4
	DoorStateGoingDown DoorState = 5
	DoorStateNotClosed DoorState = 9 // Partially open
)

// String returns the display name for a door state.
// These names are used as registry status values and MQTT payloads.
func (s DoorState) String() string {
	switch s {
	case DoorStateOpen:
		return "open"
	case DoorStateClosed:
		return "closed"
	case DoorStateStopped:
		return "stopped"
	case DoorStateGoingUp:
		return "opening"
	case DoorStateGoingDown:
		return "closing"
	case DoorStateNotClosed:
		return "partially_open"
	default:
		return "unknown"
	}
}

// ParseDoorState converts a display name back to a DoorState.
// The zero DoorState and false are returned for unknown names.
func ParseDoorState(s string) (DoorState, bool) {
	switch strings.ToLower(s) {
	case "open":
		return DoorStateOpen, true
	case "closed":
		return DoorStateClosed, true
	case "stopped":
		return DoorStateStopped, true
	case "opening":
		return DoorStateGoingUp, true
	case "closing":
		return DoorStateGoingDown, true
	case "partially_open":
		return DoorStateNotClosed, true
	default:
		return 0, false
	}
}

// DeviceType represents a vendor device type code.
type DeviceType int

// Vendor device type codes. Only door operators are bridged; hubs,
// gateways, lights and everything else are filtered out of the catalog.
const (
	DeviceTypeGDO                    DeviceType = 2
	DeviceTypeGate                   DeviceType = 5
	DeviceTypeVGDO                   DeviceType = 7
	DeviceTypeCommercialDoorOperator DeviceType = 9
	DeviceTypeWGDO                   DeviceType = 17
)

// allowedDeviceTypes is the allow-list of bridgeable device types.
var allowedDeviceTypes = map[DeviceType]bool{
	DeviceTypeGDO:                    true,
	DeviceTypeGate:                   true,
	DeviceTypeVGDO:                   true,
	DeviceTypeCommercialDoorOperator: true,
	DeviceTypeWGDO:                   true,
}

// Device is a door operator from the vendor catalog.
type Device struct {
	// DeviceID is the vendor-assigned numeric id. It can change when the
	// vendor re-registers a device; SerialNumber is the stable identity.
	DeviceID int64

	// TypeID is the vendor device type code.
	TypeID DeviceType

	// TypeName is the vendor's human-readable type name.
	TypeName string

	// SerialNumber is the hardware serial, stable across re-registration.
	SerialNumber string

	// Online reports whether the opener is reachable by the vendor cloud.
	Online bool

	// DoorState is the last observed door position.
	DoorState DoorState

	// CanOpen and CanClose report whether unattended open/close commands
	// are permitted for this device.
	CanOpen bool
	CanClose bool
}

// wireDevice is the vendor catalog representation of a single device.
type wireDevice struct {
	MyQDeviceID       int64           `json:"MyQDeviceId"`
	MyQDeviceTypeID   int             `json:"MyQDeviceTypeId"`
	MyQDeviceTypeName string          `json:"MyQDeviceTypeName"`
	SerialNumber      string          `json:"SerialNumber"`
	Attributes        []wireAttribute `json:"Attributes"`
}

// wireAttribute is a single key/value attribute on a vendor device.
type wireAttribute struct {
	AttributeDisplayName string `json:"AttributeDisplayName"`
	Value                string `json:"Value"`
}

// decodeDevice converts one raw catalog element into a Device.
//
// Absent or unparseable attributes fall back to safe defaults: offline,
// closed, cannot open, cannot close. A device that fails JSON decoding
// entirely is the caller's problem (skipped, never failing the batch).
func decodeDevice(raw json.RawMessage) (Device, error) {
	var wd wireDevice
	if err := json.Unmarshal(raw, &wd); err != nil {
		return Device{}, err
	}

	dev := Device{
		DeviceID:     wd.MyQDeviceID,
		TypeID:       DeviceType(wd.MyQDeviceTypeID),
		TypeName:     wd.MyQDeviceTypeName,
		SerialNumber: wd.SerialNumber,
		// Defaults when attributes are absent or malformed
		Online:    false,
		DoorState: DoorStateClosed,
		CanOpen:   false,
		CanClose:  false,
	}

	for _, attr := range wd.Attributes {
		switch strings.ToLower(attr.AttributeDisplayName) {
		case "online":
			dev.Online = strings.EqualFold(attr.Value, "true")
		case "doorstate":
			if n, err := strconv.Atoi(attr.Value); err == nil {
				dev.DoorState = DoorState(n)
			}
		case "isunattendedopenallowed":
			dev.CanOpen = attr.Value == "1"
		case "isunattendedcloseallowed":
			dev.CanClose = attr.Value == "1"
		}
	}

	return dev, nil
}

// isBridgeable reports whether a device type belongs to the door
// operator allow-list.
func isBridgeable(t DeviceType) bool {
	return allowedDeviceTypes[t]
}
