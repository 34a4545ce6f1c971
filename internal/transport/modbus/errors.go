package modbus

import "errors"

// Domain errors for the Modbus transport.
var (
	// ErrHostRequired is returned when a transport is created without a host.
	ErrHostRequired = errors.New("modbus: host is required")

	// ErrInvalidRegister is returned for a malformed register map entry.
	ErrInvalidRegister = errors.New("modbus: invalid register")

	// ErrUnknownParameter is returned when writing a parameter with no register.
	ErrUnknownParameter = errors.New("modbus: unknown parameter")

	// ErrNotWritable is returned when writing a read-only register.
	ErrNotWritable = errors.New("modbus: register not writable")

	// ErrInvalidValue is returned when a value cannot be encoded for a register.
	ErrInvalidValue = errors.New("modbus: invalid value")

	// ErrShortResponse is returned when the gateway answers with too few bytes.
	ErrShortResponse = errors.New("modbus: short response")

	// ErrClosed is returned for operations on a transport that was cleaned up.
	ErrClosed = errors.New("modbus: transport closed")

	// ErrNotStarted is returned for writes before Start succeeded.
	ErrNotStarted = errors.New("modbus: transport not started")
)
