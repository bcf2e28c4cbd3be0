package bridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// MQTT message types for communication between Gray Logic Core and the
// MyQ bridge. Topics follow the flat scheme
// graylogic/{category}/myq/{serial}, with the device serial number as
// the address segment.

// protocolID is the protocol identifier used in topics and payloads.
const protocolID = "myq"

// CommandMessage is sent from Core to the bridge to operate a door.
// Topic: graylogic/command/myq/{serial}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with acks.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Command is the command name: "open" or "close".
	Command string `json:"command"`

	// Source indicates where the command originated.
	// Values: "api", "automation", "voice", "scene"
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was received and sent to the cloud.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeUnknownDevice     = "UNKNOWN_DEVICE"
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/myq/{serial}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Serial is the device serial number.
	Serial string `json:"serial"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("myq").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "DEVICE_UNREACHABLE").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// StateMessage is sent from the bridge to Core when a door's state
// changes.
// Topic: graylogic/state/myq/{serial}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// Serial is the device serial number.
	Serial string `json:"serial"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// State contains the current door state:
	//   {"door": "open", "online": true}
	State map[string]any `json:"state"`

	// Protocol is the protocol identifier ("myq").
	Protocol string `json:"protocol"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the bridge is not operating correctly.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is sent from the bridge to Core to report status.
// Topic: graylogic/health/myq
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Protocol is the protocol identifier ("myq").
	Protocol string `json:"protocol"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Session is the cloud session status ("ok", "unauthorized",
	// "service_down", "throttled").
	Session string `json:"session"`

	// SessionMessage explains the session status when not "ok".
	SessionMessage string `json:"session_message,omitempty"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// DevicesManaged is the number of bridged doors.
	DevicesManaged int `json:"devices_managed"`

	// Reason explains the status (especially for degraded/stopping).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// Logins is the total number of login attempts made.
	Logins uint64 `json:"logins"`

	// Relogins is the number of inline re-logins after session expiry.
	Relogins uint64 `json:"relogins"`

	// Fetches is the total number of catalog fetches.
	Fetches uint64 `json:"fetches"`

	// Moves is the total number of door commands sent to the cloud.
	Moves uint64 `json:"moves"`

	// Errors is the total number of errors encountered.
	Errors uint64 `json:"errors"`
}

// MarshalJSON marshals a CommandMessage to JSON.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage from JSON.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, serial string, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Serial:    serial,
		Status:    status,
		Protocol:  protocolID,
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(cmd CommandMessage, serial, code, message string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		Serial:    serial,
		Status:    AckFailed,
		Protocol:  protocolID,
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewStateMessage creates a state message for a door.
func NewStateMessage(serial string, door string, online bool) StateMessage {
	return StateMessage{
		Serial:    serial,
		Timestamp: time.Now().UTC(),
		State: map[string]any{
			"door":   door,
			"online": online,
		},
		Protocol: protocolID,
	}
}
