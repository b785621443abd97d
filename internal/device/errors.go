package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device id does not resolve.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering a device with an id
	// that is already present in the registry.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrNotConnected is returned when a property write or method call is
	// attempted on a device that is not in the connected state.
	ErrNotConnected = errors.New("device: not connected")

	// ErrInvalidTransition is returned when a connection state transition
	// is requested from a state that does not allow it.
	ErrInvalidTransition = errors.New("device: invalid state transition")

	// ErrInvalidType is returned when a device type is not recognised.
	ErrInvalidType = errors.New("device: invalid type")

	// ErrInvalidID is returned when an id string cannot be parsed or resolved.
	ErrInvalidID = errors.New("device: invalid id")
)
