package debug

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/bgdb/pkg/arch"
	"github.com/hitzhangjie/bgdb/pkg/target"
	"github.com/hitzhangjie/bgdb/pkg/target/targettest"
)

const (
	textBase  = 0x0f00
	textSize  = 0x400
	entryPC   = 0x0ff0
	mainStart = 0x1000
)

// push rbp; mov rbp, rsp; nop; nop; nop; ret
var mainCode = []byte{0x55, 0x48, 0x89, 0xe5, 0x90, 0x90, 0x90, 0xc3}

// script feeds lines to the session, hook runs before line i is returned
type script struct {
	lines   []string
	prompts []string
	history []string
	hook    func(i int)
}

func (s *script) Prompt(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	i := len(s.prompts) - 1
	if s.hook != nil {
		s.hook(i)
	}
	if i >= len(s.lines) {
		return "", io.EOF
	}
	return s.lines[i], nil
}

func (s *script) AppendHistory(item string) {
	s.history = append(s.history, item)
}

type fixture struct {
	fake   *targettest.Tracer
	tracee *target.Tracee
	in     *script
	out    *bytes.Buffer
	sess   *Session
}

func newFixture(t *testing.T, lines ...string) *fixture {
	t.Helper()
	fake := targettest.New(arch.AMD64, textBase, textSize, entryPC)
	fake.Load(mainStart, mainCode)
	bi := targettest.BinaryInfo(
		targettest.Func{Name: "main", Low: mainStart, Size: 0x40},
		targettest.Func{Name: "helper", Low: mainStart + 0x100, Size: 0x20},
	)
	tracee, err := target.NewTracee(targettest.Pid, target.EXEC, arch.AMD64, fake, bi)
	require.NoError(t, err)

	f := &fixture{
		fake:   fake,
		tracee: tracee,
		in:     &script{lines: lines},
		out:    &bytes.Buffer{},
	}
	f.sess = NewSession(tracee, f.in, f.out, Config{})
	return f
}

func (f *fixture) output() string {
	return f.out.String()
}

func TestSessionBreakFunctionHitOnce(t *testing.T) {
	f := newFixture(t, "break fn:main", "cont", "cont")
	orig := f.fake.Word(mainStart)

	f.in.hook = func(i int) {
		if i != 2 {
			return
		}
		// stopped at the hit, about to continue again
		pc, err := f.tracee.PC()
		require.NoError(t, err)
		assert.Equal(t, uint64(mainStart), pc)
		assert.Equal(t, orig, f.fake.Word(mainStart), "original byte must be back before the next cont")
	}

	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Contains(t, out, "breakpoint 1 at 0x1000 in main\n")
	assert.Equal(t, 1, strings.Count(out, "hit at"))
	assert.Contains(t, out, "breakpoint 1 hit at 0x1000 in main\n")
	assert.Contains(t, out, "0x00000000001000:    0xc3909090e5894855.    push rbp\n")
	assert.Contains(t, out, "process 4242 exited with status 0\n")
	assert.Equal(t, Exited, f.sess.State())
	assert.Len(t, f.in.prompts, 3, "no prompt after the tracee exited")
	assert.NotContains(t, f.fake.Calls, "KILL")

	bp, ok := f.tracee.BreakpointAt(mainStart)
	require.True(t, ok)
	assert.Equal(t, uint64(1), bp.Hits)
}

func TestSessionStopLine(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.Run())

	assert.True(t, strings.HasPrefix(f.output(), "0x00000000000ff0:    0x9090909090909090.    nop\n"), f.output())
	require.Len(t, f.in.prompts, 1)
	assert.Equal(t, DefaultPrompt, f.in.prompts[0])
}

func TestSessionNextAdvancesPC(t *testing.T) {
	f := newFixture(t, "next", "", "n")

	var pcs []uint64
	f.in.hook = func(i int) {
		pc, err := f.tracee.PC()
		require.NoError(t, err)
		pcs = append(pcs, pc)
	}
	require.NoError(t, f.sess.Run())

	assert.Equal(t, []uint64{entryPC, entryPC + 4, entryPC + 8, entryPC + 12}, pcs)
	assert.Equal(t, []string{"next", "n"}, f.in.history, "repeated empty lines are not history")
}

func TestSessionNextOntoBreakpoint(t *testing.T) {
	f := newFixture(t, "break 1000", "next", "next", "next", "next", "next")
	orig := f.fake.Word(mainStart)

	var pcs []uint64
	f.in.hook = func(i int) {
		pc, _ := f.tracee.PC()
		pcs = append(pcs, pc)
	}
	require.NoError(t, f.sess.Run())

	// 0xff0 0xff4 0xff8 0xffc, then the trap at 0x1000 is a hit
	assert.Equal(t, 1, strings.Count(f.output(), "breakpoint 1 hit at 0x1000 in main"))
	assert.Equal(t, uint64(mainStart), pcs[5])
	assert.Equal(t, orig, f.fake.Word(mainStart))
}

func TestSessionEmptyLineNoop(t *testing.T) {
	f := newFixture(t, "", "breaks", "")

	var pcs []uint64
	f.in.hook = func(i int) {
		pc, _ := f.tracee.PC()
		pcs = append(pcs, pc)
	}
	require.NoError(t, f.sess.Run())
	assert.Equal(t, []uint64{entryPC, entryPC, entryPC, entryPC}, pcs)
	assert.Contains(t, f.output(), "no breakpoints\n")
}

func TestSessionParseError(t *testing.T) {
	f := newFixture(t, "frobnicate", "break", "exit")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Contains(t, out, "invalid command: 'frobnicate'\n")
	assert.Contains(t, out, "break: missing location")
	assert.Len(t, f.in.prompts, 3)
	assert.Equal(t, []string{"exit"}, f.in.history)
	assert.Contains(t, f.fake.Calls, "KILL", "exit must kill a started tracee")
	assert.True(t, f.tracee.Exited())
}

func TestSessionEndOfInput(t *testing.T) {
	f := newFixture(t, "next")
	require.NoError(t, f.sess.Run())

	assert.Equal(t, Exited, f.sess.State())
	assert.True(t, f.fake.Closed)
	assert.Contains(t, f.fake.Calls, "KILL")
}

func TestSessionSymbolError(t *testing.T) {
	f := newFixture(t, "break fn:nope", "breaks")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Contains(t, out, "function nope: symbol not found\n")
	assert.Contains(t, out, "no breakpoints\n")
	assert.Len(t, f.in.prompts, 3)
}

func TestSessionDuplicateBreakpointAborts(t *testing.T) {
	f := newFixture(t, "break 1000", "break fn:main", "next")
	err := f.sess.Run()

	require.Error(t, err)
	assert.True(t, errors.Is(err, target.ErrDuplicateBreakpoint))
	assert.Contains(t, f.output(), "fatal: ")
	assert.Len(t, f.in.prompts, 2)
	assert.Contains(t, f.fake.Calls, "KILL")
}

func TestSessionReArm(t *testing.T) {
	f := newFixture(t, "break 1000", "cont", "break 1000", "breaks")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Equal(t, 2, strings.Count(out, "breakpoint 1 at 0x1000 in main\n"))
	assert.Regexp(t, `1\s+0x1000\s+true\s+1\s+main`, out)
}

func TestSessionForeignTrapAborts(t *testing.T) {
	f := newFixture(t, "cont")
	f.fake.Load(mainStart+4, []byte{0xcc})

	err := f.sess.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, target.ErrUnknownTrap))

	var cerr *target.ConsistencyError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, uint64(mainStart+4), cerr.Addr)
}

func TestSessionSignalForwarded(t *testing.T) {
	f := newFixture(t, "cont", "cont")
	f.fake.Faults[mainStart] = unix.SIGSEGV

	require.NoError(t, f.sess.Run())
	out := f.output()
	assert.Contains(t, out, "process 4242 stopped by signal SIGSEGV, delivered on resume\n")
	assert.Contains(t, out, "process 4242 killed by signal SIGSEGV\n")
	assert.Equal(t, Exited, f.sess.State())
}

func TestSessionOSErrorNotFatal(t *testing.T) {
	f := newFixture(t, "cont", "next")
	f.fake.Fail["CONT"] = unix.EPERM

	require.NoError(t, f.sess.Run())
	assert.Contains(t, f.output(), "error: ptrace(CONT) pid 4242: operation not permitted\n")
	assert.Len(t, f.in.prompts, 3)
}

func TestSessionRenderErrorEscalated(t *testing.T) {
	f := newFixture(t, "next")
	f.fake.Fail["GETREGS"] = unix.EIO

	err := f.sess.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, unix.EIO))
	assert.Empty(t, f.in.prompts)
}

func TestSessionClear(t *testing.T) {
	f := newFixture(t, "break fn:main", "b fn:helper", "clear 1", "clear 7", "clearall", "breaks", "cont")
	orig := f.fake.Word(mainStart)

	require.NoError(t, f.sess.Run())
	out := f.output()
	assert.Contains(t, out, "breakpoint 1 at 0x1000 cleared\n")
	assert.Contains(t, out, "error: breakpoint not existed\n")
	assert.Contains(t, out, "1 breakpoints cleared\n")
	assert.Contains(t, out, "no breakpoints\n")
	assert.NotContains(t, out, "hit at")
	assert.Equal(t, orig, f.fake.Word(mainStart))
}

func TestSessionDisass(t *testing.T) {
	f := newFixture(t, "break 1000", "disass 1000")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Contains(t, out, "0x00000000001000:  55")
	assert.Contains(t, out, "push rbp")
	assert.Contains(t, out, "ret")
	assert.NotContains(t, out, "int3")
}

func TestSessionDisassAddressZero(t *testing.T) {
	f := newFixture(t, "disass 0")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Contains(t, out, "error: ptrace(PEEKTEXT)")
	assert.NotContains(t, out, "=>")
}

func TestSessionDisassTruncated(t *testing.T) {
	f := newFixture(t, "disass 1300")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.NotContains(t, out, "error:")
	assert.Equal(t, 8, strings.Count(out, ":  90 "))
	assert.Contains(t, out, "   0x00000000001307:  90 ")
}

func TestSessionRegs(t *testing.T) {
	f := newFixture(t, "regs")
	require.NoError(t, f.sess.Run())

	if runtime.GOARCH == "amd64" {
		assert.Regexp(t, `rip\s+0xff0\n`, f.output())
	}
}

func TestSessionHelp(t *testing.T) {
	f := newFixture(t, "help", "help b", "help nope")
	require.NoError(t, f.sess.Run())

	out := f.output()
	assert.Contains(t, out, descShort)
	assert.Contains(t, out, "- [breaks]\n")
	assert.Contains(t, out, "break <locspec>")
	assert.Contains(t, out, "error: unknown command 'nope'\n")
}

func TestCompleter(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"break", "breakpoints", "breaks"}, f.sess.completer("brea"))
	assert.Equal(t, []string{"cont", "continue"}, f.sess.completer("con"))
	assert.Equal(t, []string{"b fn:helper"}, f.sess.completer("b fn:h"))
	assert.Equal(t, []string{"break fn:helper", "break fn:main"}, f.sess.completer("break fn:"))
	assert.Empty(t, f.sess.completer("break fn:x"))
}
