package debug

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/bgdb/pkg/disasm"
	"github.com/hitzhangjie/bgdb/pkg/logflags"
	"github.com/hitzhangjie/bgdb/pkg/ptrace"
	"github.com/hitzhangjie/bgdb/pkg/target"
)

// DefaultPrompt operator prompt
const DefaultPrompt = "bgdb> "

// State session state
type State int

const (
	Initializing State = iota
	Stopped
	Exited
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Stopped:
		return "stopped"
	default:
		return "exited"
	}
}

// Config session settings
type Config struct {
	Prompt string
	Syntax disasm.Syntax
}

// Session 调试会话, ties operator commands to tracee stop events
type Session struct {
	tracee *target.Tracee
	in     LineReader
	out    io.Writer
	disasm disasm.Disassembler
	prompt string

	state State
	last  Command // repeated on empty input if it's Next or Cont
	log   *logrus.Entry
}

// NewSession create a session over a stopped tracee
func NewSession(tracee *target.Tracee, in LineReader, out io.Writer, cfg Config) *Session {
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Syntax == "" {
		cfg.Syntax = disasm.Intel
	}
	return &Session{
		tracee: tracee,
		in:     in,
		out:    out,
		disasm: disasm.Disassembler{Bits: tracee.Arch().Bits, Syntax: cfg.Syntax},
		prompt: cfg.Prompt,
		state:  Initializing,
		log:    logflags.Logger("session").WithField("pid", tracee.Pid()),
	}
}

// State current session state
func (s *Session) State() State {
	return s.state
}

// Run read and run commands until the tracee is gone, the operator exits or
// input ends. The tracee is always terminated on return.
//
// Malformed input, unknown symbols and failed tracing requests are reported
// and the operator is prompted again. An error is returned only when the
// session can't safely go on: the current instruction can't be read, or the
// breakpoint table no longer matches the tracee's text.
func (s *Session) Run() error {
	defer s.terminate()

	s.state = Stopped
	for s.state == Stopped {
		if err := s.printStop(); err != nil {
			return fmt.Errorf("read current instruction: %w", err)
		}

		line, err := s.in.Prompt(s.prompt)
		if err == io.EOF {
			fmt.Fprintln(s.out)
			return nil
		}
		if err == liner.ErrPromptAborted {
			continue
		}
		if err != nil {
			return fmt.Errorf("read input: %v", err)
		}

		cmd, err := s.parse(line)
		if err != nil {
			fmt.Fprintln(s.out, err)
			continue
		}

		if err = s.dispatch(cmd); err != nil {
			if fatal := s.report(err); fatal {
				return err
			}
		}
	}
	return nil
}

// parse an empty line repeats the last next or cont
func (s *Session) parse(line string) (Command, error) {
	cmd, err := Parse(line)
	if err != nil {
		return nil, err
	}

	if _, ok := cmd.(Noop); ok {
		switch s.last.(type) {
		case Next, Cont:
			return s.last, nil
		}
		return cmd, nil
	}

	if h, ok := s.in.(historian); ok {
		h.AppendHistory(strings.TrimSpace(line))
	}
	s.last = cmd
	return cmd, nil
}

func (s *Session) dispatch(cmd Command) error {
	s.log.WithField("command", fmt.Sprintf("%T%+v", cmd, cmd)).Debug("dispatch")

	switch c := cmd.(type) {
	case Noop:
		return nil
	case Next:
		return s.next()
	case Cont:
		return s.cont()
	case BreakAddr:
		return s.breakAddr(c.Addr)
	case BreakFunction:
		return s.breakFunction(c.Name)
	case List:
		return s.listBreakpoints()
	case Clear:
		return s.clear(c.ID)
	case ClearAll:
		return s.clearAll()
	case Disass:
		return s.disass(c.Addr)
	case Regs:
		return s.regs()
	case Help:
		return s.help(c.Topic)
	case Exit:
		s.state = Exited
		return nil
	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
}

// report print err for the operator, and tell whether the session must end
func (s *Session) report(err error) (fatal bool) {
	switch {
	case target.IsConsistencyError(err):
		s.log.WithError(err).Error("breakpoint table inconsistent")
		fmt.Fprintf(s.out, "fatal: %v\n", err)
		s.state = Exited
		return true
	case errors.Is(err, target.ErrProcessExited):
		fmt.Fprintf(s.out, "process %d exited\n", s.tracee.Pid())
		s.state = Exited
		return false
	case target.IsSymbolError(err):
		fmt.Fprintln(s.out, err)
		return false
	default:
		s.log.WithError(err).Warn("command failed")
		fmt.Fprintf(s.out, "error: %v\n", err)
		if s.tracee.Exited() {
			s.state = Exited
		}
		return false
	}
}

// wait block for the stop of the resume just issued, trapped tells whether a
// SIGTRAP stop is a breakpoint hit or just the end of a single step.
func (s *Session) wait(trapped bool) error {
	ws, err := s.tracee.Wait()
	if err != nil {
		return err
	}

	switch st := ws.(type) {
	case ptrace.Exited:
		fmt.Fprintf(s.out, "process %d exited with status %d\n", s.tracee.Pid(), st.Code)
		s.state = Exited
	case ptrace.Signaled:
		fmt.Fprintf(s.out, "process %d killed by signal %s\n", s.tracee.Pid(), unix.SignalName(st.Signal))
		s.state = Exited
	case ptrace.Stopped:
		if ptrace.IsTrap(st) {
			if !trapped {
				return nil
			}
			bp, err := s.tracee.RestoreBreakpoint()
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "breakpoint %d hit at %#x%s\n", bp.ID, bp.Addr, s.inFunction(bp.Addr))
			return nil
		}
		fmt.Fprintf(s.out, "process %d stopped by signal %s, delivered on resume\n", s.tracee.Pid(), unix.SignalName(st.Signal))
	}
	return nil
}

// printStop render the instruction at pc as the program sees it
func (s *Session) printStop() error {
	pc, err := s.tracee.PC()
	if err != nil {
		return err
	}
	word, err := s.tracee.InstructionAt(pc)
	if err != nil {
		return err
	}

	buf := make([]byte, s.tracee.Arch().PtrSize())
	s.tracee.Arch().EncodeWord(buf, word)
	fmt.Fprintf(s.out, "%#014x:    %#014x.    %s\n", pc, word, s.disasm.Instruction(buf, pc))
	return nil
}

func (s *Session) terminate() {
	s.state = Exited
	if err := s.tracee.Terminate(); err != nil {
		s.log.WithError(err).Warn("terminate tracee")
	}
}
