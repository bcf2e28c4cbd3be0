package myq

import "errors"

// Domain-specific errors for MyQ cloud operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrLoginThrottled is returned when too many login attempts have been
	// made in a short window. No network call is performed.
	ErrLoginThrottled = errors.New("myq: login attempts throttled")

	// ErrLoginSuppressed is returned when a login is requested while another
	// login is already in flight. No network call is performed.
	ErrLoginSuppressed = errors.New("myq: login already in progress")

	// ErrUnauthorized is returned when the vendor rejects the credentials
	// (return codes 203, 205, 207). Automatic retry is never performed.
	ErrUnauthorized = errors.New("myq: unauthorized")

	// ErrServiceDown is returned on transport failures, unexpected response
	// codes, or malformed responses from the vendor service.
	ErrServiceDown = errors.New("myq: service unavailable")

	// ErrInvalidDoorState is returned when a door command requests a state
	// other than open or closed. Rejected locally before any network call.
	ErrInvalidDoorState = errors.New("myq: invalid desired door state")

	// ErrInvalidBrand is returned when the configured brand is not recognised.
	ErrInvalidBrand = errors.New("myq: unknown brand")
)
