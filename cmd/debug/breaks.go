package debug

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var breaksCmd = &cobra.Command{
	Use:     "breaks",
	Short:   "列出所有断点",
	Long:    "列出所有断点, 包括已命中而未重新启用的断点",
	Aliases: []string{"bs", "breakpoints"},
	Args:    noArgs,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
}

func init() {
	debugRootCmd.AddCommand(breaksCmd)
}

func (s *Session) listBreakpoints() error {
	bps := s.tracee.ListBreakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(s.out, "no breakpoints")
		return nil
	}

	w := tabwriter.NewWriter(s.out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "id\taddress\tenabled\thits\tfunction")
	for _, bp := range bps {
		fn := bp.Function
		if fn == "" {
			fn = s.tracee.FunctionAt(bp.Addr)
		}
		fmt.Fprintf(w, "%d\t%#x\t%v\t%d\t%s\n", bp.ID, bp.Addr, bp.Enabled, bp.Hits, fn)
	}
	return w.Flush()
}
