package debug

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/hitzhangjie/bgdb/pkg/target"
)

const (
	cmdGroupAnnotation = "cmd_group_annotation"

	cmdGroupBreakpoints = "1-breaks"
	cmdGroupCtrlFlow    = "2-execute"
	cmdGroupInfo        = "3-info"
	cmdGroupOthers      = "4-other"
	cmdGroupCobra       = "other"

	cmdGroupDelimiter = "-"

	descShort = "bgdb interactive debugging commands"
)

var debugRootCmd = &cobra.Command{
	Use:   "bgdb",
	Short: descShort,
}

var helpCmd = &cobra.Command{
	Use:   "help [command]",
	Short: "显示帮助信息",
	Args:  cobra.MaximumNArgs(1),
	Annotations: map[string]string{
		cmdGroupAnnotation: cmdGroupOthers,
	},
}

func init() {
	debugRootCmd.AddCommand(helpCmd)
}

// help print grouped help, or the long help of one command
func (s *Session) help(topic string) error {
	if topic == "" {
		fmt.Fprintln(s.out, debugRootCmd.Short)
		fmt.Fprintln(s.out)
		fmt.Fprint(s.out, helpMessageByGroups(debugRootCmd))
		return nil
	}

	c := lookup(topic)
	if c == nil {
		return fmt.Errorf("unknown command '%s'", topic)
	}
	desc := c.Long
	if desc == "" {
		desc = c.Short
	}
	fmt.Fprintf(s.out, "%s\n\n  %s\n", desc, c.Use)
	if len(c.Aliases) != 0 {
		fmt.Fprintf(s.out, "\naliases: %s\n", strings.Join(c.Aliases, ", "))
	}
	return nil
}

// LineReader the operator input, *liner.State satisfies it.
// Prompt returns io.EOF at the end of input.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// historian a LineReader that records history
type historian interface {
	AppendHistory(item string)
}

// Interactive run a session over the terminal with line editing, completion
// and, if historyFile isn't empty, persistent history.
func Interactive(tracee *target.Tracee, cfg Config, historyFile string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	s := NewSession(tracee, line, os.Stdout, cfg)
	line.SetCompleter(s.completer)
	line.SetTabCompletionStyle(liner.TabPrints)

	if historyFile != "" {
		if path, err := homedir.Expand(historyFile); err == nil {
			historyFile = path
		}
		if f, err := os.Open(historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
		defer func() {
			f, err := os.Create(historyFile)
			if err != nil {
				s.log.WithError(err).Warn("write history")
				return
			}
			defer f.Close()
			line.WriteHistory(f)
		}()
	}
	return s.Run()
}

// completer complete verbs and aliases, and function names after `break fn:`
func (s *Session) completer(line string) []string {
	if strings.HasPrefix(line, "break "+funcPrefix) || strings.HasPrefix(line, "b "+funcPrefix) {
		return s.completeFunction(line)
	}

	cmds := []string{}
	for _, c := range debugRootCmd.Commands() {
		// complete cmd
		if strings.HasPrefix(c.Name(), line) {
			cmds = append(cmds, c.Name())
		}
		// complete cmd's aliases
		for _, alias := range c.Aliases {
			if strings.HasPrefix(alias, line) {
				cmds = append(cmds, alias)
			}
		}
	}
	sort.Strings(cmds)
	return cmds
}

func (s *Session) completeFunction(line string) []string {
	idx := strings.Index(line, funcPrefix) + len(funcPrefix)
	head, partial := line[:idx], line[idx:]

	fns, err := s.tracee.BInfo.Functions()
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var cands []string
	for _, fn := range fns {
		if seen[fn.Name] || !strings.HasPrefix(fn.Name, partial) {
			continue
		}
		seen[fn.Name] = true
		cands = append(cands, head+fn.Name)
	}
	sort.Strings(cands)
	return cands
}

// helpMessageByGroups 将各个命令按照分组归类，再展示帮助信息
func helpMessageByGroups(cmd *cobra.Command) string {

	// key:group, val:sorted commands in same group
	groups := map[string][]string{}
	for _, c := range cmd.Commands() {
		// 如果没有指定命令分组，放入other组
		groupName, ok := c.Annotations[cmdGroupAnnotation]
		if !ok {
			groupName = cmdGroupCobra
		}

		groupCmds := groups[groupName]
		groupCmds = append(groupCmds, fmt.Sprintf("  %-16s:%s", c.Name(), c.Short))
		sort.Strings(groupCmds)

		groups[groupName] = groupCmds
	}

	if len(groups[cmdGroupCobra]) != 0 {
		groups[cmdGroupOthers] = append(groups[cmdGroupOthers], groups[cmdGroupCobra]...)
	}
	delete(groups, cmdGroupCobra)

	// 按照分组名进行排序
	groupNames := []string{}
	for k := range groups {
		groupNames = append(groupNames, k)
	}
	sort.Strings(groupNames)

	// 按照group分组，并对组内命令进行排序
	buf := bytes.Buffer{}
	for _, groupName := range groupNames {
		group := strings.Split(groupName, cmdGroupDelimiter)[1]
		buf.WriteString(fmt.Sprintf("- [%s]\n", group))

		for _, cmd := range groups[groupName] {
			buf.WriteString(fmt.Sprintf("%s\n", cmd))
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
