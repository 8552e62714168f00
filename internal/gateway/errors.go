package gateway

import "errors"

// Domain errors for the gateway package.
var (
	// ErrMissingHWID is returned when a controller connects without a
	// hardware identifier.
	ErrMissingHWID = errors.New("gateway: missing hwid")

	// ErrMissingChannel is returned when a controller connects without
	// a primary channel device ID.
	ErrMissingChannel = errors.New("gateway: missing ch1 device id")

	// ErrUnitNotFound is returned when no connection exists for a hardware ID.
	ErrUnitNotFound = errors.New("gateway: unit not connected")

	// ErrInvalidDeviceID is returned when a frame carries a device ID
	// that cannot be coerced to an integer.
	ErrInvalidDeviceID = errors.New("gateway: invalid device id")

	// ErrUnknownFrame is returned when a frame's title is not recognised.
	ErrUnknownFrame = errors.New("gateway: unknown frame title")
)
