package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrIntervalTooShort is returned when a poll interval below the
	// minimum is requested. The previous interval stays in effect.
	ErrIntervalTooShort = errors.New("bridge: poll interval below minimum")

	// ErrSyncInFlight is returned when a sync is requested while one is
	// already running.
	ErrSyncInFlight = errors.New("bridge: sync already in flight")

	// ErrUnknownDevice is returned when a command targets a serial the
	// bridge has never seen in a catalog fetch.
	ErrUnknownDevice = errors.New("bridge: unknown device serial")

	// ErrInvalidCommand is returned for commands other than open/close.
	ErrInvalidCommand = errors.New("bridge: invalid command")
)
