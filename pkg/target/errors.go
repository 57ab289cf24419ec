package target

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateBreakpoint an armed breakpoint already patches the address
	ErrDuplicateBreakpoint = errors.New("duplicate breakpoint")
	// ErrUnknownTrap a trap fired at an address no armed breakpoint patches
	ErrUnknownTrap = errors.New("trap at address without breakpoint")
	// ErrBreakpointNotExisted no breakpoint has the requested id
	ErrBreakpointNotExisted = errors.New("breakpoint not existed")
	// ErrProcessExited the tracee is gone
	ErrProcessExited = errors.New("process exited")
)

// ConsistencyError the breakpoint table and the tracee text disagree, or were
// about to. Continuing could corrupt the tracee's code.
type ConsistencyError struct {
	Addr uint64
	Err  error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("breakpoint table inconsistent at %#x: %v", e.Addr, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// IsConsistencyError reports whether err is, or wraps, a *ConsistencyError
func IsConsistencyError(err error) bool {
	var e *ConsistencyError
	return errors.As(err, &e)
}
