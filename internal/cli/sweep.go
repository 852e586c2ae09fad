package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prepscuola/simulazioni-backend/internal/repository"
	"github.com/prepscuola/simulazioni-backend/internal/service"
)

func newSweepCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a maintenance sweep once",
	}
	cmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")

	run := func(name string) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: "Run the " + name + " sweep",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				d, err := connect(cmd.Context(), true)
				if err != nil {
					return err
				}
				defer d.Close()

				users := repository.NewUserRepository(d.pool)
				notifications := service.NewNotificationService(repository.NewNotificationRepository(d.pool), d.rdb, d.log)
				sweeps := service.NewSweepService(
					repository.NewAssignmentRepository(d.pool),
					repository.NewResultRepository(d.pool),
					repository.NewContractRepository(d.pool),
					users,
					notifications,
					d.rdb,
					d.log,
				)

				var report any
				switch name {
				case service.SweepCloseSimulations:
					report, err = sweeps.CloseSimulations(cmd.Context(), dryRun)
				case service.SweepExpireContracts:
					report, err = sweeps.ExpireContracts(cmd.Context(), dryRun)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				return writeJSON(cmd.OutOrStdout(), report)
			},
		}
	}
	cmd.AddCommand(run(service.SweepCloseSimulations), run(service.SweepExpireContracts))
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
