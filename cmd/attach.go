/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hitzhangjie/bgdb/pkg/target"
)

// attachCmd represents the attach command
var attachCmd = &cobra.Command{
	Use:   "attach <traceePID>",
	Short: "调试运行中进程",
	Long: `调试运行中进程.

符号信息默认从/proc/<traceePID>/exe读取, 也可以通过--exe指定.
调试会话结束后, 断点被移除, 进程被detach并继续运行.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := strconv.Atoi(args[0])
		if err != nil || pid <= 0 {
			return fmt.Errorf("%s invalid traceePID", args[0])
		}
		exe, _ := cmd.Flags().GetString("exe")

		a, cfg, err := prepare()
		if err != nil {
			return err
		}

		tracee, err := target.Attach(a, pid, exe)
		if err != nil {
			return err
		}
		// after debugger session finished, we should detach tracee because it's not started by debugger
		return run(tracee, cfg)
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)

	attachCmd.Flags().String("exe", "", "executable to read debug info from, default /proc/<traceePID>/exe")
}
