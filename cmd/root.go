/*
Copyright © 2020 hit.zhangjie@gmail.com

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
	"os"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/hitzhangjie/bgdb/cmd/debug"
	"github.com/hitzhangjie/bgdb/pkg/arch"
	"github.com/hitzhangjie/bgdb/pkg/disasm"
	"github.com/hitzhangjie/bgdb/pkg/logflags"
	"github.com/hitzhangjie/bgdb/pkg/target"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bgdb <prog> [args...]",
	Short: "bgdb is an instruction level debugger for linux",
	Long: `bgdb is an instruction level debugger for linux.

It starts <prog> traced and stops it at the entry of its program image, then
lets you single step, continue and plant breakpoints by address or by function
name, using the DWARF debug info of <prog>.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          execTracee,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bgdb.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-output", "", "log output: stderr, stdout, discard or a file")
	rootCmd.PersistentFlags().String("syntax", string(disasm.Intel), "disassembly syntax: intel, gnu, go")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.output", rootCmd.PersistentFlags().Lookup("log-output"))
	viper.BindPFlag("disasm.syntax", rootCmd.PersistentFlags().Lookup("syntax"))

	// program arguments are passed through untouched
	rootCmd.Flags().SetInterspersed(false)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("prompt", debug.DefaultPrompt)
	viper.SetDefault("history.file", "~/.bgdb_history")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".bgdb" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".bgdb")
	}

	viper.SetEnvPrefix("bgdb")
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// session settings, loggers and the host architecture from the config
func prepare() (*arch.Arch, debug.Config, error) {
	if err := logflags.Setup(viper.GetString("log.level"), viper.GetString("log.output")); err != nil {
		return nil, debug.Config{}, err
	}

	a, err := arch.Select(runtime.GOARCH)
	if err != nil {
		return nil, debug.Config{}, err
	}

	syntax, err := disasm.ParseSyntax(viper.GetString("disasm.syntax"))
	if err != nil {
		return nil, debug.Config{}, err
	}
	return a, debug.Config{Prompt: viper.GetString("prompt"), Syntax: syntax}, nil
}

// run the interactive session over tracee, the tracee is terminated when it ends
func run(tracee *target.Tracee, cfg debug.Config) error {
	current.Store(int64(tracee.Pid()))
	killOnSignal.Store(tracee.Kind() == target.EXEC)
	defer current.Store(0)

	return debug.Interactive(tracee, cfg, viper.GetString("history.file"))
}

var (
	current      = atomic.NewInt64(0)
	killOnSignal = atomic.NewBool(false)

	kill = unix.Kill
)

// Cleanup kill a tracee started by bgdb, called when bgdb itself is signaled.
// An attached tracee is left alone, the kernel detaches it when bgdb exits.
func Cleanup() {
	pid := int(current.Load())
	if pid <= 0 || !killOnSignal.Load() {
		return
	}
	kill(pid, unix.SIGKILL)
}
