// Package cli implements simctl, the operator tool for the simulations
// backend.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd(os.Stdout).ExecuteContext(ctx)
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "simctl",
		Short:         "Operator tooling for the simulations backend",
		SilenceUsage:  true,
	}
	cmd.SetOut(out)

	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newHashSecretCmd())
	cmd.AddCommand(newTokenCmd())
	return cmd
}
