package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear <breakpoint no.>",
	Short: "清除指定编号的断点",
	Long:  `清除指定编号的断点, 编号见breaks`,
	Args:  cobra.ExactArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
}

func init() {
	debugRootCmd.AddCommand(clearCmd)
}

func (s *Session) clear(id uint64) error {
	bp, err := s.tracee.ClearBreakpoint(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "breakpoint %d at %#x cleared\n", bp.ID, bp.Addr)
	return nil
}
