package danfoss

import "errors"

// Domain errors for the Danfoss Air session.
var (
	// ErrSerialNumberUnavailable is returned when either serial number word
	// is missing after the transport has started.
	ErrSerialNumberUnavailable = errors.New("danfoss: serial number not available")

	// ErrSessionSuperseded is returned to the waiter of an initialisation
	// that was abandoned because the host changed or the device was removed.
	ErrSessionSuperseded = errors.New("danfoss: session superseded")

	// ErrDeviceRemoved is returned for any request made after the device was deleted.
	ErrDeviceRemoved = errors.New("danfoss: device removed")

	// ErrControllerStopped is returned when the controller's event loop has exited.
	ErrControllerStopped = errors.New("danfoss: controller stopped")

	// ErrUnknownCapability is returned for a capability the device does not expose.
	ErrUnknownCapability = errors.New("danfoss: unknown capability")

	// ErrCapabilityNotWritable is returned when writing a read-only capability.
	ErrCapabilityNotWritable = errors.New("danfoss: capability not writable")

	// ErrInvalidCapabilityValue is returned when a write carries a value of the wrong type.
	ErrInvalidCapabilityValue = errors.New("danfoss: invalid capability value")

	// ErrTransportRequired is returned when a controller is built without a transport factory.
	ErrTransportRequired = errors.New("danfoss: transport factory is required")

	// ErrPlatformRequired is returned when a controller is built without a platform.
	ErrPlatformRequired = errors.New("danfoss: platform is required")
)
