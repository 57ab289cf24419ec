package debug

import (
	"github.com/spf13/cobra"
)

var exitCmd = &cobra.Command{
	Use:     "exit",
	Short:   "结束调试会话",
	Long:    "结束调试会话, 启动的进程被杀死, attach的进程被detach",
	Aliases: []string{"quit", "q"},
	Args:    noArgs,
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
}

func init() {
	debugRootCmd.AddCommand(exitCmd)
}
