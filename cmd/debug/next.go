package debug

import (
	"github.com/spf13/cobra"
)

var nextCmd = &cobra.Command{
	Use:     "next",
	Short:   "执行一条指令",
	Aliases: []string{"n", "step", "s"},
	Args:    noArgs,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
}

func init() {
	debugRootCmd.AddCommand(nextCmd)
}

// next single step one instruction.
//
// Stepping onto an armed breakpoint executes its trap, so the stop is a hit
// only when a breakpoint was armed at the pc we stepped from.
func (s *Session) next() error {
	pc, err := s.tracee.PC()
	if err != nil {
		return err
	}
	bp, ok := s.tracee.BreakpointAt(pc)
	armed := ok && bp.Enabled

	if err = s.tracee.SingleStep(); err != nil {
		return err
	}
	return s.wait(armed)
}
