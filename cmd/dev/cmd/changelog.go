package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate or update CHANGELOG.md from git history",
		Long: `Generate CHANGELOG.md with git-chglog from conventional commits
(<type>[optional scope]: <description>).

Examples:
  dev changelog
  dev changelog --next v0.2.0
  dev changelog --tag v0.1.0 --output CHANGES.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			next, _ := cmd.Flags().GetString("next")
			tag, _ := cmd.Flags().GetString("tag")

			if _, err := exec.LookPath("git-chglog"); err != nil {
				slog.Error("git-chglog not found in PATH, install it with: go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest")
				return fmt.Errorf("git-chglog not installed: %w", err)
			}
			return runTool(cmd, "git-chglog", changelogArgs(output, next, tag)...)
		},
	}
	cmd.Flags().String("next", "", "Next version tag (e.g., v0.2.0)")
	cmd.Flags().String("output", "CHANGELOG.md", "Output file path")
	cmd.Flags().String("tag", "", "Generate changelog for specific tag")
	return cmd
}

func changelogArgs(output, next, tag string) []string {
	if output == "" {
		output = "CHANGELOG.md"
	}
	var args []string
	if next != "" {
		args = append(args, "--next-tag", next)
	}
	args = append(args, "--output", output)
	if tag != "" {
		args = append(args, tag)
	}
	return args
}

// runTool runs an external program attached to the terminal.
func runTool(cmd *cobra.Command, name string, args ...string) error {
	slog.Info("running", "tool", name, "args", args)
	tool := exec.CommandContext(cmd.Context(), name, args...)
	tool.Stdout = os.Stdout
	tool.Stderr = os.Stderr
	tool.Stdin = os.Stdin
	if err := tool.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
