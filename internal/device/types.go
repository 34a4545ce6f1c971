package device

import (
	"maps"
	"time"
)

// State is a snapshot of capability values keyed by capability identifier.
type State map[string]any

// DeepCopy returns a copy of the state map. Values are scalars, so a
// shallow copy of the map is a deep copy of the state.
func (s State) DeepCopy() State {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// ChangeKind identifies what a Change describes.
type ChangeKind string

// Change kinds emitted by the Store.
const (
	ChangeAvailability      ChangeKind = "availability"
	ChangeCapabilityAdded   ChangeKind = "capability_added"
	ChangeCapabilityRemoved ChangeKind = "capability_removed"
	ChangeValue             ChangeKind = "value"
)

// Change is delivered to Store listeners after every mutation.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Capability string     `json:"capability,omitempty"`
	Value      any        `json:"value,omitempty"`
	Snapshot   Snapshot   `json:"snapshot"`
}

// Snapshot is a point-in-time copy of the device as the platform sees it.
type Snapshot struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`

	// Available is false during any outage; values are retained.
	Available bool   `json:"available"`
	Reason    string `json:"unavailable_reason,omitempty"`

	// Capabilities lists the capabilities currently present, in registration order.
	Capabilities []string `json:"capabilities"`

	// State holds the last known value of each present capability that has one.
	State State `json:"state"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Settings are the user-editable device settings.
type Settings struct {
	DeviceID  string    `json:"device_id"`
	Hostname  string    `json:"hostname"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
