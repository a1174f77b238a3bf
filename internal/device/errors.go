package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device code or ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when a generated code collides with an existing device.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidStatus is returned when a status is not ON or OFF.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidOperation is returned for command operations other than
	// Activate and Deactivate.
	ErrInvalidOperation = errors.New("device: invalid operation")

	// ErrInvalidCommand is returned when a command description fails validation.
	ErrInvalidCommand = errors.New("device: invalid command description")

	// ErrUnknownMember is returned when a shared-with username does not exist.
	ErrUnknownMember = errors.New("device: unknown member")
)
