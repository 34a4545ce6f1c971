package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrCapabilityNotFound) {
//	    // capability is not currently present
//	}
var (
	// ErrCapabilityNotFound is returned when a capability is not present on the device.
	ErrCapabilityNotFound = errors.New("device: capability not found")

	// ErrInvalidCapability is returned when a capability identifier is empty.
	ErrInvalidCapability = errors.New("device: invalid capability")

	// ErrSettingsNotFound is returned when no settings are stored for a device.
	ErrSettingsNotFound = errors.New("device: settings not found")

	// ErrInvalidSettings is returned when settings validation fails.
	ErrInvalidSettings = errors.New("device: invalid settings")

	// ErrDeviceIDRequired is returned when an operation is given an empty device ID.
	ErrDeviceIDRequired = errors.New("device: id is required")
)
