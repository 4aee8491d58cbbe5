package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newDumpUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "dump-usage",
		Short:  "Print the help of every command, for the README",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			writeHelp(cmd.OutOrStdout(), cmd.Root(), 0)
			return nil
		},
	}
}

func writeHelp(w io.Writer, cmd *cobra.Command, depth int) {
	if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Hidden {
		return
	}

	indent := ""
	if depth > 1 {
		indent = strings.Repeat(" ", depth*4)
	}
	name := cmd.Name()
	fmt.Fprintf(w, "\n%s* %s%s\n", indent, strings.ToUpper(name[:1]), name[1:])

	help := cmd.Long
	if help == "" {
		help = cmd.Short
	}
	for _, line := range strings.Split(strings.TrimRight(help+"\n\n"+cmd.UsageString(), "\n"), "\n") {
		fmt.Fprintf(w, "%s  %s\n", indent, line)
	}

	for _, sub := range cmd.Commands() {
		writeHelp(w, sub, depth+1)
	}
}
