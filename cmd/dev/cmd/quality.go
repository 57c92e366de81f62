package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func task(use, short string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := run(); err != nil {
				return fmt.Errorf("%s failed: %w", use, err)
			}
			return nil
		},
	}
}

func TestCmd() *cobra.Command {
	return task("test", "Run unit tests (no hardware required)", test.Test)
}

func LintCmd() *cobra.Command {
	return task("lint", "Run linters", test.Lint)
}

// IntegrationTestCmd runs tests against a HAT attached to the host.
func IntegrationTestCmd() *cobra.Command {
	return task("integration-test", "Run integration tests on a Raspberry Pi with the HAT mounted", test.Integ)
}
