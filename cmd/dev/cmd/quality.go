package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Run unit tests (driver, simulator, buses, cli)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
}

func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
}

// simSmoke lists the cli invocations run against the simulator after the integration tests.
var simSmoke = [][]string{
	{"id"},
	{"status"},
	{"rate", "set", "4"},
	{"watch", "--interval", "100ms", "--count", "3"},
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration tests, then smoke test the cli on the simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Integ(); err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			if skip, _ := cmd.Flags().GetBool("skip-sim"); skip {
				return nil
			}
			for _, invocation := range simSmoke {
				if err := runTool(cmd, "go", simArgs(invocation)...); err != nil {
					return fmt.Errorf("simulator smoke test %v failed: %w", invocation, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("skip-sim", false, "do not run the cli against the simulator")
	return cmd
}
