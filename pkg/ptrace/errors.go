package ptrace

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrClosed the tracer goroutine has been stopped
var ErrClosed = errors.New("tracer closed")

// ErrInvalidPid pids <= 0 name process groups or every process, never a tracee
var ErrInvalidPid = errors.New("invalid pid")

// OpError a failed tracing operation
type OpError struct {
	Op   string  // operation, like PEEKTEXT
	Pid  int     // tracee
	Addr uintptr // address for memory operations, 0 otherwise
	Err  error   // underlying error, usually a unix.Errno
}

func (e *OpError) Error() string {
	if e.Addr != 0 {
		return fmt.Sprintf("ptrace(%s) pid %d addr %#x: %v", e.Op, e.Pid, e.Addr, e.Err)
	}
	return fmt.Sprintf("ptrace(%s) pid %d: %v", e.Op, e.Pid, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsNoSuchProcess reports whether err says the tracee no longer exists.
func IsNoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH) || errors.Is(err, unix.ECHILD)
}

func opError(op string, pid int, addr uintptr, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Pid: pid, Addr: addr, Err: err}
}
