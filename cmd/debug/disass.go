package debug

import (
	"fmt"

	"github.com/spf13/cobra"
)

// x86 instructions are at most 15 bytes long
const maxInstLen = 15

const defaultDisassCount = 10

var disassCmd = &cobra.Command{
	Use:   "disass [address]",
	Short: "反汇编机器指令",
	Long: `从指定地址(十六进制, 默认当前PC)开始反汇编10条机器指令.

已添加的断点不影响反汇编结果, 显示的是原始指令.`,
	Aliases: []string{"dis", "disassemble"},
	Args:    cobra.MaximumNArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupInfo,
	},
}

func init() {
	debugRootCmd.AddCommand(disassCmd)
}

// disass from at, the current pc if at is nil
func (s *Session) disass(at *uint64) error {
	pc, err := s.tracee.PC()
	if err != nil {
		return err
	}
	addr := pc
	if at != nil {
		addr = *at
	}

	buf, err := s.tracee.ReadMemory(addr, defaultDisassCount*maxInstLen)
	if err != nil {
		return err
	}

	for i, off := 0, 0; i < defaultDisassCount && off < len(buf); i++ {
		ip := addr + uint64(off)
		text, n := s.disasm.Decode(buf[off:], ip)

		mark := "  "
		if ip == pc {
			mark = "=>"
		}
		fmt.Fprintf(s.out, "%s %#014x:  % -24x%s\n", mark, ip, buf[off:off+n], text)
		off += n
	}
	return nil
}
