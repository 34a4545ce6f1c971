package danfoss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Protocol is the protocol identifier used in topics and messages.
const Protocol = "danfoss"

// CommandMessage is sent from Core to the bridge to write a capability.
// Topic: graylogic/command/danfoss/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`

	// Capability is the capability to write, e.g. "fan_mode" or "onoff.boost".
	Capability string `json:"capability"`

	// Value is the requested value: a string for fan_mode, a number for
	// fan_speed.step and a boolean for the onoff capabilities.
	Value any `json:"value"`

	// Source indicates where the command originated ("api", "automation", ...).
	Source string `json:"source,omitempty"`
}

// AckStatus is the outcome reported for a command.
type AckStatus string

const (
	// AckAccepted means the write was validated and forwarded to the unit.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the write was rejected.
	AckFailed AckStatus = "failed"

	// AckTimeout means the write did not complete in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage acknowledges a command.
// Topic: graylogic/ack/danfoss/{device_id}
type AckMessage struct {
	CommandID  string    `json:"command_id"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   string    `json:"device_id"`
	Status     AckStatus `json:"status"`
	Protocol   string    `json:"protocol"`
	Capability string    `json:"capability,omitempty"`
	Error      *AckError `json:"error,omitempty"`
}

// AckError describes why a command failed.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeInvalidCapability = "INVALID_CAPABILITY"
	ErrCodeNotWritable       = "NOT_WRITABLE"
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeDeviceRemoved     = "DEVICE_REMOVED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode maps an error returned by the controller onto an ack code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownCapability):
		return ErrCodeInvalidCapability
	case errors.Is(err, ErrCapabilityNotWritable):
		return ErrCodeNotWritable
	case errors.Is(err, ErrInvalidCapabilityValue):
		return ErrCodeInvalidValue
	case errors.Is(err, ErrDeviceRemoved):
		return ErrCodeDeviceRemoved
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeBridgeError
	}
}

// NewAckMessage creates a successful acknowledgement.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID:  cmd.ID,
		Timestamp:  time.Now().UTC(),
		DeviceID:   cmd.DeviceID,
		Status:     status,
		Protocol:   Protocol,
		Capability: cmd.Capability,
	}
}

// NewAckError creates a failed acknowledgement. A timeout code yields AckTimeout.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	if code == ErrCodeTimeout {
		ack.Status = AckTimeout
	}
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// StateMessage carries the device view. Published retained on every change.
// Topic: graylogic/state/danfoss/{device_id}
type StateMessage struct {
	DeviceID     string         `json:"device_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Available    bool           `json:"available"`
	Reason       string         `json:"reason,omitempty"`
	State        map[string]any `json:"state"`
	Capabilities []string       `json:"capabilities"`
	Protocol     string         `json:"protocol"`
}

// SettingsMessage updates the stored device settings. Absent fields are unchanged.
// Topic: graylogic/config/danfoss/{device_id}
type SettingsMessage struct {
	Hostname *string `json:"hostname,omitempty"`
	Name     *string `json:"name,omitempty"`
}

// HealthStatus is the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthOffline  HealthStatus = "offline"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: graylogic/health/danfoss (retained)
type HealthMessage struct {
	Bridge        string         `json:"bridge"`
	Timestamp     time.Time      `json:"timestamp"`
	Status        HealthStatus   `json:"status"`
	Version       string         `json:"version,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Session       *SessionHealth `json:"session,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// SessionHealth is the session part of a health message.
type SessionHealth struct {
	DeviceID       string `json:"device_id"`
	State          string `json:"state"`
	Host           string `json:"host,omitempty"`
	SerialNumber   string `json:"serial_number,omitempty"`
	ReinitAttempts uint64 `json:"reinit_attempts"`
	LastError      string `json:"last_error,omitempty"`
}

// NewSessionHealth converts a controller status for a health message.
func NewSessionHealth(st Status) *SessionHealth {
	sh := &SessionHealth{
		DeviceID:       st.DeviceID,
		State:          st.State.String(),
		Host:           st.Host,
		ReinitAttempts: st.ReinitAttempts,
		LastError:      st.LastError,
	}
	if st.SerialNumber != 0 {
		sh.SerialNumber = fmt.Sprintf("%d", st.SerialNumber)
	}
	return sh
}

// NewLWTMessage creates the message the broker publishes if the bridge
// disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// decodeCommand parses a command payload. The device ID defaults to the
// one in the topic.
func decodeCommand(payload []byte, deviceID string) (CommandMessage, error) {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return cmd, fmt.Errorf("unmarshal command message: %w", err)
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = deviceID
	}
	if cmd.Capability == "" {
		return cmd, errors.New("command has no capability")
	}
	return cmd, nil
}
