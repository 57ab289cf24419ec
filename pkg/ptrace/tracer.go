// Package ptrace is a thin, typed layer over the Linux tracing syscalls.
//
// Linux only accepts ptrace requests for a tracee from the thread that
// attached to it, see https://github.com/golang/go/issues/7699. A Tracer runs
// every request, including the fork/exec that establishes tracing, on one
// goroutine locked to its OS thread.
package ptrace

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/bgdb/pkg/arch"
	"github.com/hitzhangjie/bgdb/pkg/logflags"
)

// Tracer issues ptrace requests on behalf of a single debugger session
type Tracer struct {
	arch *arch.Arch
	log  *logrus.Entry

	once      sync.Once
	closeOnce sync.Once
	reqCh     chan func() // ptrace requests are sent here and run by the locked goroutine
	reqDone   chan struct{}
	stopCh    chan struct{}
}

// New create a Tracer for tracees of architecture a
func New(a *arch.Arch) *Tracer {
	return &Tracer{
		arch:    a,
		log:     logflags.Logger("ptrace"),
		reqCh:   make(chan func()),
		reqDone: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}
}

// exec run fn on the tracer thread and wait for it to finish
func (t *Tracer) exec(fn func()) error {
	t.once.Do(func() {
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			for {
				select {
				case req := <-t.reqCh:
					req()
					t.reqDone <- struct{}{}
				case <-t.stopCh:
					return
				}
			}
		}()
	})

	select {
	case <-t.stopCh:
		return ErrClosed
	default:
	}

	select {
	case t.reqCh <- fn:
	case <-t.stopCh:
		return ErrClosed
	}
	<-t.reqDone
	return nil
}

// Close stop the tracer thread, requests issued afterwards fail with ErrClosed.
func (t *Tracer) Close() {
	t.closeOnce.Do(func() {
		close(t.stopCh)
	})
}

// Launch start execName traced, and wait for the stop at the new program image.
func (t *Tracer) Launch(execName string, args ...string) (*os.Process, error) {
	var (
		proc *os.Process
		err  error
	)
	if e := t.exec(func() {
		progCmd := exec.Command(execName, args...)
		progCmd.Stdin = os.Stdin
		progCmd.Stdout = os.Stdout
		progCmd.Stderr = os.Stderr
		progCmd.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:     true, // implies PTRACE_TRACEME
			Setpgid:    true,
			Foreground: false,
		}
		progCmd.Env = os.Environ()

		if err = progCmd.Start(); err != nil {
			err = fmt.Errorf("start %s: %v", execName, err)
			return
		}
		proc = progCmd.Process

		var ws WaitStatus
		ws, err = t.wait(proc.Pid)
		if err != nil {
			return
		}
		if !IsTrap(ws) {
			err = fmt.Errorf("process %d did not stop at exec: %v", proc.Pid, ws)
		}
	}); e != nil {
		return nil, e
	}
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{"pid": proc.Pid, "exec": execName}).Debug("launched")
	return proc, nil
}

// Attach attach to running process pid and wait for it to stop.
func (t *Tracer) Attach(pid int) error {
	var err error
	if e := t.exec(func() {
		if err = opError("ATTACH", pid, 0, unix.PtraceAttach(pid)); err != nil {
			return
		}
		var ws WaitStatus
		if ws, err = t.wait(pid); err != nil {
			return
		}
		if _, ok := ws.(Stopped); !ok {
			err = fmt.Errorf("process %d did not stop after attach: %v", pid, ws)
		}
	}); e != nil {
		return e
	}
	t.log.WithField("pid", pid).Debug("attached")
	return err
}

// Detach detach from pid and let it run.
func (t *Tracer) Detach(pid int) error {
	var err error
	if e := t.exec(func() {
		err = opError("DETACH", pid, 0, unix.PtraceDetach(pid))
	}); e != nil {
		return e
	}
	return err
}

// Wait block until pid changes state.
func (t *Tracer) Wait(pid int) (WaitStatus, error) {
	var (
		ws  WaitStatus
		err error
	)
	if e := t.exec(func() {
		ws, err = t.wait(pid)
	}); e != nil {
		return nil, e
	}
	return ws, err
}

func (t *Tracer) wait(pid int) (WaitStatus, error) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, unix.WALL, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, opError("WAIT4", pid, 0, err)
		}
		break
	}
	ws, err := classify(status)
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{"pid": pid, "status": ws.String()}).Debug("wait")
	return ws, nil
}

// PeekWord read one word at addr
func (t *Tracer) PeekWord(pid int, addr uintptr) (uint64, error) {
	var (
		buf = make([]byte, t.arch.PtrSize())
		n   int
		err error
	)
	if e := t.exec(func() {
		n, err = unix.PtracePeekText(pid, addr, buf)
	}); e != nil {
		return 0, e
	}
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short read, %d bytes", n)
	}
	if err != nil {
		return 0, opError("PEEKTEXT", pid, addr, err)
	}
	word := t.arch.DecodeWord(buf)
	t.log.WithFields(logrus.Fields{"pid": pid, "addr": fmt.Sprintf("%#x", addr), "word": fmt.Sprintf("%#x", word)}).Debug("peek")
	return word, nil
}

// PokeWord write one word at addr, the tracee must be stopped.
func (t *Tracer) PokeWord(pid int, addr uintptr, word uint64) error {
	var (
		buf = make([]byte, t.arch.PtrSize())
		n   int
		err error
	)
	t.arch.EncodeWord(buf, word)
	if e := t.exec(func() {
		n, err = unix.PtracePokeText(pid, addr, buf)
	}); e != nil {
		return e
	}
	if err == nil && n != len(buf) {
		err = fmt.Errorf("short write, %d bytes", n)
	}
	if err != nil {
		return opError("POKETEXT", pid, addr, err)
	}
	t.log.WithFields(logrus.Fields{"pid": pid, "addr": fmt.Sprintf("%#x", addr), "word": fmt.Sprintf("%#x", word)}).Debug("poke")
	return nil
}

// GetRegs read the general purpose registers of pid
func (t *Tracer) GetRegs(pid int) (*unix.PtraceRegs, error) {
	var (
		regs unix.PtraceRegs
		err  error
	)
	if e := t.exec(func() {
		err = unix.PtraceGetRegs(pid, &regs)
	}); e != nil {
		return nil, e
	}
	if err != nil {
		return nil, opError("GETREGS", pid, 0, err)
	}
	return &regs, nil
}

// SetRegs write the general purpose registers of pid
func (t *Tracer) SetRegs(pid int, regs *unix.PtraceRegs) error {
	var err error
	if e := t.exec(func() {
		err = unix.PtraceSetRegs(pid, regs)
	}); e != nil {
		return e
	}
	return opError("SETREGS", pid, 0, err)
}

// SingleStep resume pid for one instruction delivering sig (0 for none),
// the caller must Wait for the stop.
func (t *Tracer) SingleStep(pid int, sig unix.Signal) error {
	var err error
	if e := t.exec(func() {
		_, _, errno := unix.Syscall6(unix.SYS_PTRACE, unix.PTRACE_SINGLESTEP, uintptr(pid), 0, uintptr(sig), 0, 0)
		if errno != 0 {
			err = errno
		}
	}); e != nil {
		return e
	}
	t.log.WithFields(logrus.Fields{"pid": pid, "signal": int(sig)}).Debug("singlestep")
	return opError("SINGLESTEP", pid, 0, err)
}

// Cont resume pid delivering sig (0 for none), the caller must Wait for the stop.
func (t *Tracer) Cont(pid int, sig unix.Signal) error {
	var err error
	if e := t.exec(func() {
		err = unix.PtraceCont(pid, int(sig))
	}); e != nil {
		return e
	}
	t.log.WithFields(logrus.Fields{"pid": pid, "signal": int(sig)}).Debug("cont")
	return opError("CONT", pid, 0, err)
}

// Kill send SIGKILL to pid, the caller reaps it with Wait.
func (t *Tracer) Kill(pid int) error {
	if pid <= 0 {
		return opError("KILL", pid, 0, ErrInvalidPid)
	}
	return opError("KILL", pid, 0, unix.Kill(pid, unix.SIGKILL))
}
