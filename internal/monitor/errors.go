package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for a response or simulation the
	// current state does not accept
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrClosed is returned once Run has exited
	ErrClosed = errors.New("monitor closed")
)

// AuthorizationError is returned by Start when the monitor may not read
// the system state it needs. The monitor stays idle.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not authorized: %s: %v", e.Reason, e.Err)
	}
	return "not authorized: " + e.Reason
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
