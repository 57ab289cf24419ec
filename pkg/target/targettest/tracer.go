// Package targettest provides an in-memory tracer for testing code built on
// package target without tracing a real process.
package targettest

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/bgdb/pkg/arch"
	"github.com/hitzhangjie/bgdb/pkg/ptrace"
)

// Pid the pid the fake process answers to
const Pid = 4242

// Tracer fakes a single traced process running a straight line program.
//
// Every instruction is InsnLen bytes long, except a trap byte which is one
// byte long and stops the process with SIGTRAP. The process exits with status
// 0 once its PC reaches ExitPC. Signals in Faults are raised when the
// instruction at that address is about to run.
type Tracer struct {
	Arch    *arch.Arch
	Mem     map[uint64]byte // mapped text, unmapped addresses fail with EIO
	Regs    unix.PtraceRegs
	InsnLen uint64
	ExitPC  uint64
	Faults  map[uint64]unix.Signal

	Calls        []string // every request, in order
	GetRegsCalls int
	Fail         map[string]error // request name -> error to fail it with
	Detached     bool
	Closed       bool

	gone    bool
	pending ptrace.WaitStatus
}

// New fake process with text mapped over [base, base+size) and the PC at entry
func New(a *arch.Arch, base, size, entry uint64) *Tracer {
	f := &Tracer{
		Arch:    a,
		Mem:     map[uint64]byte{},
		InsnLen: 4,
		ExitPC:  base + size,
		Faults:  map[uint64]unix.Signal{},
		Fail:    map[string]error{},
	}
	for addr := base; addr < base+size+uint64(a.PtrSize()); addr++ {
		f.Mem[addr] = 0x90
	}
	f.Regs.SetPC(entry)
	return f
}

// Load copy code into memory at addr
func (f *Tracer) Load(addr uint64, code []byte) {
	for i, b := range code {
		f.Mem[addr+uint64(i)] = b
	}
}

func (f *Tracer) call(name string, pid int) error {
	f.Calls = append(f.Calls, name)
	if err, ok := f.Fail[name]; ok {
		return &ptrace.OpError{Op: name, Pid: pid, Err: err}
	}
	if pid != Pid || f.gone {
		return &ptrace.OpError{Op: name, Pid: pid, Err: unix.ESRCH}
	}
	return nil
}

// PC current program counter
func (f *Tracer) PC() uint64 {
	return f.Regs.PC()
}

// step run one instruction, reports a stop status or nil if it just ran
func (f *Tracer) step(sig unix.Signal) ptrace.WaitStatus {
	if sig != 0 && sig != unix.SIGTRAP {
		f.gone = true
		return ptrace.Signaled{Signal: sig}
	}

	pc := f.Regs.PC()
	if pc >= f.ExitPC {
		f.gone = true
		return ptrace.Exited{Code: 0}
	}
	if s, ok := f.Faults[pc]; ok {
		return ptrace.Stopped{Signal: s}
	}
	if f.Mem[pc] == f.Arch.TrapInstr[0] {
		f.Regs.SetPC(pc + f.Arch.TrapWidth())
		return ptrace.Stopped{Signal: unix.SIGTRAP}
	}
	f.Regs.SetPC(pc + f.InsnLen)
	return nil
}

// Wait return the status of the last resume
func (f *Tracer) Wait(pid int) (ptrace.WaitStatus, error) {
	f.Calls = append(f.Calls, "WAIT4")
	if err, ok := f.Fail["WAIT4"]; ok {
		return nil, &ptrace.OpError{Op: "WAIT4", Pid: pid, Err: err}
	}
	if f.pending == nil {
		return nil, &ptrace.OpError{Op: "WAIT4", Pid: pid, Err: unix.ECHILD}
	}
	ws := f.pending
	f.pending = nil
	return ws, nil
}

// PeekWord read a word
func (f *Tracer) PeekWord(pid int, addr uintptr) (uint64, error) {
	if err := f.call("PEEKTEXT", pid); err != nil {
		return 0, err
	}
	buf := make([]byte, f.Arch.PtrSize())
	for i := range buf {
		b, ok := f.Mem[uint64(addr)+uint64(i)]
		if !ok {
			return 0, &ptrace.OpError{Op: "PEEKTEXT", Pid: pid, Addr: addr, Err: unix.EIO}
		}
		buf[i] = b
	}
	return f.Arch.DecodeWord(buf), nil
}

// PokeWord write a word
func (f *Tracer) PokeWord(pid int, addr uintptr, word uint64) error {
	if err := f.call("POKETEXT", pid); err != nil {
		return err
	}
	buf := make([]byte, f.Arch.PtrSize())
	f.Arch.EncodeWord(buf, word)
	for i := range buf {
		if _, ok := f.Mem[uint64(addr)+uint64(i)]; !ok {
			return &ptrace.OpError{Op: "POKETEXT", Pid: pid, Addr: addr, Err: unix.EIO}
		}
	}
	f.Load(uint64(addr), buf)
	return nil
}

// Word read a word without recording a call
func (f *Tracer) Word(addr uint64) uint64 {
	buf := make([]byte, f.Arch.PtrSize())
	for i := range buf {
		buf[i] = f.Mem[addr+uint64(i)]
	}
	return f.Arch.DecodeWord(buf)
}

// GetRegs read registers
func (f *Tracer) GetRegs(pid int) (*unix.PtraceRegs, error) {
	if err := f.call("GETREGS", pid); err != nil {
		return nil, err
	}
	f.GetRegsCalls++
	regs := f.Regs
	return &regs, nil
}

// SetRegs write registers
func (f *Tracer) SetRegs(pid int, regs *unix.PtraceRegs) error {
	if err := f.call("SETREGS", pid); err != nil {
		return err
	}
	f.Regs = *regs
	return nil
}

// SingleStep run one instruction
func (f *Tracer) SingleStep(pid int, sig unix.Signal) error {
	if err := f.call("SINGLESTEP", pid); err != nil {
		return err
	}
	if ws := f.step(sig); ws != nil {
		f.pending = ws
		return nil
	}
	f.pending = ptrace.Stopped{Signal: unix.SIGTRAP}
	return nil
}

// Cont run until a trap, a fault or the exit
func (f *Tracer) Cont(pid int, sig unix.Signal) error {
	if err := f.call("CONT", pid); err != nil {
		return err
	}
	for {
		if ws := f.step(sig); ws != nil {
			f.pending = ws
			return nil
		}
		sig = 0
	}
}

// Kill terminate the process
func (f *Tracer) Kill(pid int) error {
	if err := f.call("KILL", pid); err != nil {
		return err
	}
	f.gone = true
	f.pending = ptrace.Signaled{Signal: unix.SIGKILL}
	return nil
}

// Detach let the process go
func (f *Tracer) Detach(pid int) error {
	if err := f.call("DETACH", pid); err != nil {
		return err
	}
	f.Detached = true
	f.gone = true
	return nil
}

// Close release the tracer
func (f *Tracer) Close() {
	f.Closed = true
}

func (f *Tracer) String() string {
	return fmt.Sprintf("fake tracee pid %d pc %#x", Pid, f.Regs.PC())
}
