package debug

import (
	"fmt"
	"reflect"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var regsCmd = &cobra.Command{
	Use:     "regs",
	Short:   "打印寄存器",
	Aliases: []string{"registers"},
	Args:    noArgs,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
}

func init() {
	debugRootCmd.AddCommand(regsCmd)
}

// regs print every general purpose register, the register set layout is the
// kernel's user_regs_struct of the host architecture
func (s *Session) regs() error {
	regs, err := s.tracee.Registers()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(s.out, 0, 8, 2, ' ', 0)
	v := reflect.ValueOf(regs)
	for i := 0; i < v.NumField(); i++ {
		name := strings.ToLower(v.Type().Field(i).Name)
		fmt.Fprintf(w, "%s\t%#x\n", name, v.Field(i).Interface())
	}
	return w.Flush()
}
