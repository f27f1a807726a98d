package cmd

import (
	"github.com/spf13/cobra"
)

// SimCmd runs the cli against the in-memory sensor simulator.
func SimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim [command]",
		Short: "Run the nct7717u cli with the simulator adapter",
		Example: `  dev sim watch --count 5
  dev sim status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"watch"}
			}
			return runTool(cmd, "go", simArgs(args)...)
		},
		DisableFlagParsing: true,
	}
	return cmd
}

func simArgs(args []string) []string {
	return append([]string{"run", mainPackage, "--adapter", "sim"}, args...)
}
