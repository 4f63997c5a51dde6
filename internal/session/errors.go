package session

import (
	"errors"
)

// Session-level errors. Camera capability failures (permission, busy,
// unknown device) are defined in the camera package and wrapped verbatim
// into the session's error message so the user sees the original cause.
var (
	// ErrBusy is returned when a lifecycle operation is issued while
	// another one is still in flight. Lifecycle operations are serialized
	// through a single slot; callers must wait for the prior one to settle.
	ErrBusy = errors.New("session operation already in flight")

	// ErrClosed is returned for operations on a torn-down session
	ErrClosed = errors.New("session is closed")

	// ErrNoDeviceFound is returned when enumeration yields zero devices
	ErrNoDeviceFound = errors.New("no camera device found")

	// ErrSwitchUnavailable is returned by SwitchDevice when fewer than two
	// devices were enumerated
	ErrSwitchUnavailable = errors.New("fewer than two camera devices available")

	// ErrNotInError is returned by Retry outside the Error state
	ErrNotInError = errors.New("session is not in error state")

	// ErrSurfaceLost is returned when the scanning surface unmounts while a
	// start is in flight; the freshly acquired binding is released before
	// this is returned
	ErrSurfaceLost = errors.New("scanning surface went away during start")
)
