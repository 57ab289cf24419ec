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
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/bgdb/pkg/target"
)

// execTracee start args[0] traced and debug it, after the debugger session
// finished the tracee is killed because it's started by debugger.
func execTracee(cmd *cobra.Command, args []string) error {
	a, cfg, err := prepare()
	if err != nil {
		return err
	}

	// start tracee and wait tracee stopped
	tracee, err := target.Start(a, args[0], args[1:]...)
	if err != nil {
		return err
	}
	return run(tracee, cfg)
}
