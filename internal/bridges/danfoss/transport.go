package danfoss

import (
	"context"
	"time"
)

// Transport is the client that talks to the unit. One instance serves one
// session; the controller discards it and builds a new one on recovery.
//
// Implementations deliver parameters and errors through the callbacks in
// TransportOptions, from any goroutine, but never from inside Cleanup.
type Transport interface {
	// Start connects and performs the first full read. It returns once the
	// serial number words can be read with GetParameter.
	Start(ctx context.Context) error

	SetMode(ctx context.Context, code int) error
	SetFanStep(ctx context.Context, step int) error
	ActivateBoost(ctx context.Context) error
	DeactivateBoost(ctx context.Context) error
	WriteParameterValue(ctx context.Context, name string, value bool) error

	// GetParameter returns the last value read for a raw parameter.
	GetParameter(name string) (Parameter, bool)

	// Cleanup stops the client and releases its connection. It must not block
	// on in-flight I/O.
	Cleanup() error
}

// TransportOptions configures a new Transport.
type TransportOptions struct {
	Host            string
	ContinueOnError bool
	PollInterval    time.Duration

	// OnParameter receives every parameter read from the unit.
	OnParameter func(Parameter)

	// OnError receives runtime errors. kind is a coarse tag such as "read" or "write".
	OnError func(err error, kind string)
}

// TransportFactory builds a transport bound to one host.
type TransportFactory func(opts TransportOptions) (Transport, error)

// Platform is the host-side view of the device that the controller mutates.
// It is satisfied by *device.Store.
type Platform interface {
	SetAvailable() error
	SetUnavailable(reason string) error
	SetCapabilityValue(id string, value any) error
	AddCapability(id string) error
	RemoveCapability(id string) error
	HasCapability(id string) bool
}

// Logger is the structured logging interface used by this package.
// It is satisfied by *logging.Logger.
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
