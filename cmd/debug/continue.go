package debug

import (
	"github.com/spf13/cobra"
)

var contCmd = &cobra.Command{
	Use:     "cont",
	Short:   "运行到下个断点",
	Aliases: []string{"c", "continue"},
	Args:    noArgs,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupCtrlFlow,
	},
}

func init() {
	debugRootCmd.AddCommand(contCmd)
}

// cont resume until the next stop, a SIGTRAP stop is always a breakpoint hit
func (s *Session) cont() error {
	if err := s.tracee.Continue(); err != nil {
		return err
	}
	return s.wait(true)
}
