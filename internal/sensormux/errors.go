package sensormux

import "errors"

var (
	// ErrUnsupported is returned when the device has no hardware for the
	// sensor kind. It is never retried.
	ErrUnsupported = errors.New("sensormux: sensor is not supported on this device")
	// ErrStartFailed wraps a failure of the driver's Start call.
	ErrStartFailed = errors.New("sensormux: failed to start sensor")
	// ErrStopFailed wraps a failure of the driver's Stop call.
	ErrStopFailed = errors.New("sensormux: failed to stop sensor")
	// ErrNilListener is returned when a nil listener is added or removed.
	ErrNilListener = errors.New("sensormux: nil listener")
	// ErrIncomparableListener is returned for listeners whose dynamic type
	// cannot be compared for identity (for example a struct holding a slice).
	ErrIncomparableListener = errors.New("sensormux: listener is not comparable")
	// ErrClosed is returned by AddListener after Close.
	ErrClosed = errors.New("sensormux: manager is closed")
)
