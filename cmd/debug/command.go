package debug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// Command one parsed line of operator input
type Command interface {
	command()
}

type (
	// Noop empty input
	Noop struct{}
	// Next execute one instruction
	Next struct{}
	// Cont run until a breakpoint, a signal or the exit
	Cont struct{}
	// BreakAddr plant a breakpoint at an instruction address
	BreakAddr struct{ Addr uint64 }
	// BreakFunction plant a breakpoint at a function entry
	BreakFunction struct{ Name string }
	// List list breakpoints
	List struct{}
	// Clear remove breakpoint ID
	Clear struct{ ID uint64 }
	// ClearAll remove every breakpoint
	ClearAll struct{}
	// Disass disassemble from Addr, the pc if nil
	Disass struct{ Addr *uint64 }
	// Regs print the general purpose registers
	Regs struct{}
	// Help print help, about one verb if Topic is set
	Help struct{ Topic string }
	// Exit end the session
	Exit struct{}
)

func (Noop) command()          {}
func (Next) command()          {}
func (Cont) command()          {}
func (BreakAddr) command()     {}
func (BreakFunction) command() {}
func (List) command()          {}
func (Clear) command()         {}
func (ClearAll) command()      {}
func (Disass) command()        {}
func (Regs) command()          {}
func (Help) command()          {}
func (Exit) command()          {}

// ParseError malformed operator input, the session state is left alone
type ParseError struct {
	Verb string
	Msg  string
}

func (e *ParseError) Error() string {
	return e.Msg
}

const funcPrefix = "fn:"

// Parse parse one line, verbs and their aliases are those of the command tree
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Noop{}, nil
	}

	verb, args := fields[0], fields[1:]
	c := lookup(verb)
	if c == nil {
		return nil, &ParseError{Verb: verb, Msg: fmt.Sprintf("invalid command: '%s'", verb)}
	}
	if c.Args != nil {
		if err := c.Args(c, args); err != nil {
			return nil, &ParseError{Verb: verb, Msg: fmt.Sprintf("%s: %v, usage: %s", c.Name(), err, c.Use)}
		}
	}

	cmd, err := parsers[c.Name()](args)
	if err != nil {
		return nil, &ParseError{Verb: verb, Msg: fmt.Sprintf("%s: %v", c.Name(), err)}
	}
	return cmd, nil
}

// lookup find the command named, or aliased, verb
func lookup(verb string) *cobra.Command {
	for _, c := range debugRootCmd.Commands() {
		if c.Name() == verb || c.HasAlias(verb) {
			return c
		}
	}
	return nil
}

var parsers = map[string]func(args []string) (Command, error){
	"next":     func([]string) (Command, error) { return Next{}, nil },
	"cont":     func([]string) (Command, error) { return Cont{}, nil },
	"break":    parseBreak,
	"breaks":   func([]string) (Command, error) { return List{}, nil },
	"clear":    parseClear,
	"clearall": func([]string) (Command, error) { return ClearAll{}, nil },
	"disass":   parseDisass,
	"regs":     func([]string) (Command, error) { return Regs{}, nil },
	"help":     parseHelp,
	"exit":     func([]string) (Command, error) { return Exit{}, nil },
}

// parseBreak locspec is a hex address or fn:<function name>
func parseBreak(args []string) (Command, error) {
	loc := args[0]
	if strings.HasPrefix(loc, funcPrefix) {
		name := strings.TrimPrefix(loc, funcPrefix)
		if name == "" {
			return nil, fmt.Errorf("missing function name after '%s'", funcPrefix)
		}
		return BreakFunction{Name: name}, nil
	}

	addr, err := parseAddress(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid location '%s', want a hex address or %s<name>", loc, funcPrefix)
	}
	return BreakAddr{Addr: addr}, nil
}

func parseClear(args []string) (Command, error) {
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid breakpoint id '%s'", args[0])
	}
	return Clear{ID: id}, nil
}

func parseDisass(args []string) (Command, error) {
	if len(args) == 0 {
		return Disass{}, nil
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return nil, err
	}
	return Disass{Addr: &addr}, nil
}

func parseHelp(args []string) (Command, error) {
	if len(args) == 0 {
		return Help{}, nil
	}
	return Help{Topic: args[0]}, nil
}

func parseAddress(loc string) (uint64, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(loc, "0x"), "0X")
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s', want hex digits", loc)
	}
	return v, nil
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("takes no arguments")
	}
	return nil
}

// locationArg break takes exactly one locspec
func locationArg(cmd *cobra.Command, args []string) error {
	switch len(args) {
	case 0:
		return fmt.Errorf("missing location")
	case 1:
		return nil
	default:
		return fmt.Errorf("too many arguments")
	}
}
