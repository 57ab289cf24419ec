package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

var breakCmd = &cobra.Command{
	Use:   "break <locspec>",
	Short: "添加断点",
	Long: `在指令地址处添加断点，位置可以通过locspec格式指定。

当前支持的locspec格式，包括两种:
- 指令地址, 十六进制, 如 401000
- fn:函数名, 如 fn:main

已命中的断点不再生效, 对同一地址再次执行break可以重新启用它.`,
	Aliases: []string{"b"},
	Args:    locationArg,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupBreakpoints,
	},
}

func init() {
	debugRootCmd.AddCommand(breakCmd)
}

func (s *Session) breakAddr(addr uint64) error {
	bp, err := s.tracee.InsertBreakpoint(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "breakpoint %d at %#x%s\n", bp.ID, bp.Addr, s.inFunction(bp.Addr))
	return nil
}

func (s *Session) breakFunction(name string) error {
	bp, err := s.tracee.InsertBreakpointByFunction(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "breakpoint %d at %#x in %s\n", bp.ID, bp.Addr, name)
	return nil
}

// inFunction " in <name>" if debug info covers pc
func (s *Session) inFunction(pc uint64) string {
	if fn := s.tracee.FunctionAt(pc); fn != "" {
		return " in " + fn
	}
	return ""
}
