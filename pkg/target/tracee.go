package target

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/bgdb/pkg/arch"
	"github.com/hitzhangjie/bgdb/pkg/logflags"
	"github.com/hitzhangjie/bgdb/pkg/ptrace"
	"github.com/hitzhangjie/bgdb/pkg/symbol"
)

// Kind how the tracee came under control
type Kind int

const (
	EXEC   Kind = iota // started by the debugger, killed when the session ends
	ATTACH             // attached to, detached when the session ends
)

func (k Kind) String() string {
	if k == ATTACH {
		return "attach"
	}
	return "exec"
}

// Tracer the tracing operations a Tracee needs, *ptrace.Tracer implements it
type Tracer interface {
	Wait(pid int) (ptrace.WaitStatus, error)
	PeekWord(pid int, addr uintptr) (uint64, error)
	PokeWord(pid int, addr uintptr, word uint64) error
	GetRegs(pid int) (*unix.PtraceRegs, error)
	SetRegs(pid int, regs *unix.PtraceRegs) error
	SingleStep(pid int, sig unix.Signal) error
	Cont(pid int, sig unix.Signal) error
	Kill(pid int) error
	Detach(pid int) error
	Close()
}

// Tracee 被调试进程信息
type Tracee struct {
	pid    int
	kind   Kind
	arch   *arch.Arch
	tracer Tracer

	BInfo       *symbol.BinaryInfo // 符号层操作
	Breakpoints *BreakpointTable   // 已经添加的断点

	regs       Cache[unix.PtraceRegs]
	pendingSig unix.Signal // delivered on the next resume
	exited     bool
	log        *logrus.Entry
}

// NewTracee wrap an already traced and stopped process pid
func NewTracee(pid int, kind Kind, a *arch.Arch, tracer Tracer, bi *symbol.BinaryInfo) (*Tracee, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("tracee pid %d: %w", pid, ptrace.ErrInvalidPid)
	}
	if bi == nil {
		bi = &symbol.BinaryInfo{}
	}
	return &Tracee{
		pid:         pid,
		kind:        kind,
		arch:        a,
		tracer:      tracer,
		BInfo:       bi,
		Breakpoints: NewBreakpointTable(a),
		log:         logflags.Logger("target").WithField("pid", pid),
	}, nil
}

// Start load the debug info of execName, then start it traced. The process
// is stopped at its program image entry when Start returns.
func Start(a *arch.Arch, execName string, args ...string) (*Tracee, error) {
	bi, err := symbol.Analyze(execName)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", execName, err)
	}

	tracer := ptrace.New(a)
	p, err := tracer.Launch(execName, args...)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	// Release resets p.Pid
	pid := p.Pid
	// reaped through Wait4 by the tracer, never by os.Process
	_ = p.Release()

	t, err := NewTracee(pid, EXEC, a, tracer, bi)
	if err != nil {
		tracer.Close()
		return nil, err
	}
	t.log.WithField("debuginfo", bi.HasDebugInfo()).Info("started")
	return t, nil
}

// Attach trace running process pid, exe is the binary to read debug info
// from, /proc/<pid>/exe when empty.
func Attach(a *arch.Arch, pid int, exe string) (*Tracee, error) {
	if !checkPid(pid) {
		return nil, fmt.Errorf("process %d not existed", pid)
	}

	var err error
	if exe == "" {
		if exe, err = readProcExe(pid); err != nil {
			return nil, err
		}
	}
	bi, err := symbol.Analyze(exe)
	if err != nil {
		return nil, fmt.Errorf("load %s: %v", exe, err)
	}

	tracer := ptrace.New(a)
	if err = tracer.Attach(pid); err != nil {
		tracer.Close()
		return nil, err
	}

	t, err := NewTracee(pid, ATTACH, a, tracer, bi)
	if err != nil {
		tracer.Detach(pid)
		tracer.Close()
		return nil, err
	}
	comm, _ := readProcComm(pid)
	t.log.WithFields(logrus.Fields{"comm": comm, "exe": exe}).Info("attached")
	return t, nil
}

// Pid 进程ID
func (t *Tracee) Pid() int {
	return t.pid
}

// Kind how the tracee was started
func (t *Tracee) Kind() Kind {
	return t.kind
}

// Arch tracee architecture
func (t *Tracee) Arch() *arch.Arch {
	return t.arch
}

// Exited reports whether the tracee is gone
func (t *Tracee) Exited() bool {
	return t.exited
}

func (t *Tracee) checkAlive() error {
	if t.exited {
		return ErrProcessExited
	}
	return nil
}

func (t *Tracee) fetchRegs() (*unix.PtraceRegs, error) {
	return t.tracer.GetRegs(t.pid)
}

// Registers return the registers of the stopped tracee, read from the kernel
// only on the first call after the tracee last ran.
func (t *Tracee) Registers() (unix.PtraceRegs, error) {
	if err := t.checkAlive(); err != nil {
		return unix.PtraceRegs{}, err
	}
	regs, err := t.regs.GetOrPopulate(t.fetchRegs)
	if err != nil {
		return unix.PtraceRegs{}, err
	}
	return *regs, nil
}

// PC current program counter
func (t *Tracee) PC() (uint64, error) {
	regs, err := t.Registers()
	if err != nil {
		return 0, err
	}
	return regs.PC(), nil
}

func (t *Tracee) readWord(addr uint64) (uint64, error) {
	return t.tracer.PeekWord(t.pid, uintptr(addr))
}

func (t *Tracee) writeWord(addr, word uint64) error {
	return t.tracer.PokeWord(t.pid, uintptr(addr), word)
}

// ReadWord read the raw word at addr, trap bytes included
func (t *Tracee) ReadWord(addr uint64) (uint64, error) {
	if err := t.checkAlive(); err != nil {
		return 0, err
	}
	return t.readWord(addr)
}

// InstructionAt read the word at addr as the program sees it, with the
// original bytes in place of armed breakpoints.
func (t *Tracee) InstructionAt(addr uint64) (uint64, error) {
	word, err := t.ReadWord(addr)
	if err != nil {
		return 0, err
	}
	return t.Breakpoints.Shadow(addr, word), nil
}

// ReadMemory read n bytes at addr as the program sees them. A read running
// off the end of the mapping is cut short at the first unreadable word, it
// fails only if the word at addr itself can't be read.
func (t *Tracee) ReadMemory(addr uint64, n int) ([]byte, error) {
	size := t.arch.PtrSize()
	buf := make([]byte, 0, n+size)
	word := make([]byte, size)
	for off := 0; off < n; off += size {
		w, err := t.InstructionAt(addr + uint64(off))
		if err != nil {
			if off == 0 || errors.Is(err, ErrProcessExited) {
				return nil, err
			}
			t.log.WithError(err).WithField("addr", fmt.Sprintf("%#x", addr+uint64(off))).Debug("read truncated")
			return buf, nil
		}
		t.arch.EncodeWord(word, w)
		buf = append(buf, word...)
	}
	return buf[:n], nil
}

// resume issue a step or continue, the caller must Wait for the stop
func (t *Tracee) resume(op string, fn func(pid int, sig unix.Signal) error) error {
	if err := t.checkAlive(); err != nil {
		return err
	}
	sig := t.pendingSig
	t.pendingSig = 0
	defer t.regs.Invalidate()

	t.log.WithFields(logrus.Fields{"op": op, "signal": int(sig)}).Debug("resume")
	return fn(t.pid, sig)
}

// SingleStep 执行一条指令, doesn't wait
func (t *Tracee) SingleStep() error {
	return t.resume("singlestep", t.tracer.SingleStep)
}

// Continue 运行到下个断点, doesn't wait
func (t *Tracee) Continue() error {
	return t.resume("continue", t.tracer.Cont)
}

// Wait block until the tracee stops or terminates after a resume.
//
// A stop by any signal other than SIGTRAP is remembered and delivered on
// the next resume.
func (t *Tracee) Wait() (ptrace.WaitStatus, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	defer t.regs.Invalidate()

	ws, err := t.tracer.Wait(t.pid)
	if err != nil {
		if ptrace.IsNoSuchProcess(err) {
			t.exited = true
		}
		return nil, err
	}

	switch s := ws.(type) {
	case ptrace.Exited, ptrace.Signaled:
		t.exited = true
	case ptrace.Stopped:
		if s.Signal != unix.SIGTRAP {
			t.pendingSig = s.Signal
		}
	}
	t.log.WithField("status", ws.String()).Debug("wait")
	return ws, nil
}

// InsertBreakpoint plant a breakpoint at addr
func (t *Tracee) InsertBreakpoint(addr uint64) (*Breakpoint, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	bp, err := t.Breakpoints.Insert(t, addr)
	if err != nil {
		return nil, err
	}
	t.log.WithFields(logrus.Fields{"id": bp.ID, "addr": fmt.Sprintf("%#x", addr)}).Debug("breakpoint inserted")
	return bp, nil
}

// InsertBreakpointByFunction plant a breakpoint at the entry address of
// function name.
func (t *Tracee) InsertBreakpointByFunction(name string) (*Breakpoint, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	addr, err := t.BInfo.ResolveFunction(name)
	if err != nil {
		return nil, err
	}
	bp, err := t.InsertBreakpoint(addr)
	if err != nil {
		return nil, err
	}
	bp.Function = name
	return bp, nil
}

// RestoreBreakpoint undo the breakpoint whose trap just fired.
//
// The trap fires with the PC already past the trap instruction. The PC is
// moved back onto the breakpoint address and the original bytes are written
// back, so the next resume executes the original instruction. The breakpoint
// stays disarmed until it's inserted again.
func (t *Tracee) RestoreBreakpoint() (*Breakpoint, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	regs, err := t.regs.GetOrPopulate(t.fetchRegs)
	if err != nil {
		return nil, err
	}

	addr := regs.PC() - t.arch.TrapWidth()
	bp, err := t.Breakpoints.Restore(t, addr)
	if err != nil {
		return nil, err
	}

	regs.SetPC(addr)
	if err = t.tracer.SetRegs(t.pid, regs); err != nil {
		t.regs.Invalidate()
		return nil, err
	}
	t.log.WithFields(logrus.Fields{"id": bp.ID, "addr": fmt.Sprintf("%#x", addr)}).Debug("breakpoint restored")
	return bp, nil
}

// BreakpointAt return the breakpoint planted at addr
func (t *Tracee) BreakpointAt(addr uint64) (*Breakpoint, bool) {
	return t.Breakpoints.Get(addr)
}

// ListBreakpoints 列出所有断点
func (t *Tracee) ListBreakpoints() Breakpoints {
	return t.Breakpoints.List()
}

// ClearBreakpoint 删除编号为id的断点
func (t *Tracee) ClearBreakpoint(id uint64) (*Breakpoint, error) {
	if err := t.checkAlive(); err != nil {
		return nil, err
	}
	return t.Breakpoints.Clear(t, id)
}

// FunctionAt name of the function covering pc, "" if unknown
func (t *Tracee) FunctionAt(pc uint64) string {
	fn, err := t.BInfo.PCToFunction(pc)
	if err != nil {
		return ""
	}
	return fn.Name
}

// Terminate end the tracee: an exec'd one is killed and reaped, an attached
// one has its breakpoints removed and is detached. Calling it again, or on
// an exited tracee, does nothing.
func (t *Tracee) Terminate() error {
	defer t.tracer.Close()
	if t.exited {
		return nil
	}
	t.exited = true
	t.regs.Invalidate()

	if t.kind == ATTACH {
		for _, bp := range t.Breakpoints.List() {
			if !bp.Enabled {
				continue
			}
			if err := t.Breakpoints.unpatch(t, bp); err != nil {
				t.log.WithError(err).WithField("id", bp.ID).Warn("remove breakpoint before detach")
			}
		}
		return t.tracer.Detach(t.pid)
	}

	if err := t.tracer.Kill(t.pid); err != nil {
		if ptrace.IsNoSuchProcess(err) {
			return nil
		}
		return err
	}
	for {
		ws, err := t.tracer.Wait(t.pid)
		if err != nil {
			if ptrace.IsNoSuchProcess(err) {
				return nil
			}
			return err
		}
		if ptrace.Terminal(ws) {
			t.log.WithField("status", ws.String()).Info("terminated")
			return nil
		}
	}
}

// IsSymbolError reports whether err came from resolving a symbol
func IsSymbolError(err error) bool {
	return errors.Is(err, symbol.ErrSymbolNotFound) ||
		errors.Is(err, symbol.ErrNoEntryAddress) ||
		errors.Is(err, symbol.ErrNoDebugInfo) ||
		errors.Is(err, symbol.ErrMalformedDebugInfo)
}
