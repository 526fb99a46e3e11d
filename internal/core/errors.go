package core

import "errors"

// Call precondition and lifecycle failures. Precondition violations are
// returned synchronously to the caller; asynchronous failures surface as a
// terminal snapshot with the session already torn down.
var (
	ErrAlreadyInCall     = errors.New("already in call")
	ErrInvalidState      = errors.New("operation not valid in current call state")
	ErrPermissionDenied  = errors.New("media permission denied")
	ErrDeviceUnavailable = errors.New("media device unavailable")
	ErrNegotiationFailed = errors.New("negotiation failed")
	ErrNotRunning        = errors.New("session manager not running")
	ErrNotAuthorized     = errors.New("call not authorized")
)
