package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearallCmd = &cobra.Command{
	Use:   "clearall",
	Short: "清除所有的断点",
	Long:  `清除所有的断点`,
	Args:  noArgs,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
}

func init() {
	debugRootCmd.AddCommand(clearallCmd)
}

func (s *Session) clearAll() error {
	bps := s.tracee.ListBreakpoints()
	for _, bp := range bps {
		if _, err := s.tracee.ClearBreakpoint(bp.ID); err != nil {
			return fmt.Errorf("clear breakpoint %d: %w", bp.ID, err)
		}
	}
	fmt.Fprintf(s.out, "%d breakpoints cleared\n", len(bps))
	return nil
}
