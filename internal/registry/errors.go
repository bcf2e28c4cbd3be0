package registry

import "errors"

// Domain errors for the registry package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, registry.ErrNotFound) {
//	    // handle missing device
//	}
var (
	// ErrNotFound is returned when a ref or serial does not exist.
	ErrNotFound = errors.New("registry: device not found")

	// ErrExists is returned when creating a device whose serial is
	// already registered.
	ErrExists = errors.New("registry: device already exists")

	// ErrInvalidSerial is returned when a serial number is empty.
	ErrInvalidSerial = errors.New("registry: serial cannot be empty")
)
