package ptrace

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// WaitStatus why the tracee changed state, one of Exited, Signaled or Stopped.
//
// Consumers type switch over it, the set of cases is closed.
type WaitStatus interface {
	fmt.Stringer
	waitStatus()
}

// Exited tracee exited normally with Code
type Exited struct {
	Code int
}

// Signaled tracee was terminated by Signal
type Signaled struct {
	Signal unix.Signal
}

// Stopped tracee is in a tracing stop caused by Signal
type Stopped struct {
	Signal unix.Signal
}

func (Exited) waitStatus()   {}
func (Signaled) waitStatus() {}
func (Stopped) waitStatus()  {}

func (s Exited) String() string   { return fmt.Sprintf("exited: %d", s.Code) }
func (s Signaled) String() string { return "signaled: " + unix.SignalName(s.Signal) }
func (s Stopped) String() string  { return "stopped: " + unix.SignalName(s.Signal) }

// IsTrap reports whether ws is a SIGTRAP stop, the stop raised by a completed
// single step or by an executed trap instruction.
func IsTrap(ws WaitStatus) bool {
	s, ok := ws.(Stopped)
	return ok && s.Signal == unix.SIGTRAP
}

// Terminal reports whether the tracee is gone after ws.
func Terminal(ws WaitStatus) bool {
	switch ws.(type) {
	case Exited, Signaled:
		return true
	default:
		return false
	}
}

// classify convert a raw kernel wait status
func classify(ws unix.WaitStatus) (WaitStatus, error) {
	switch {
	case ws.Exited():
		return Exited{Code: ws.ExitStatus()}, nil
	case ws.Signaled():
		return Signaled{Signal: ws.Signal()}, nil
	case ws.Stopped():
		return Stopped{Signal: ws.StopSignal()}, nil
	default:
		return nil, fmt.Errorf("unexpected wait status: %#x", uint32(ws))
	}
}
