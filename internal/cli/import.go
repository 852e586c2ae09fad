package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/prepscuola/simulazioni-backend/internal/model"
	"github.com/prepscuola/simulazioni-backend/internal/repository"
	"github.com/prepscuola/simulazioni-backend/internal/service"
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import simulations or users from YAML files",
	}
	cmd.AddCommand(newImportSimulationCmd(), newImportUsersCmd())
	return cmd
}

func newImportSimulationCmd() *cobra.Command {
	var (
		author  string
		publish bool
		check   bool
	)

	cmd := &cobra.Command{
		Use:   "simulation <file.yaml>",
		Short: "Create a draft simulation from a YAML template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			req, err := parseSimulation(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if check {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d sections)\n", args[0], len(req.Sections))
				return nil
			}

			authorID, err := uuid.Parse(author)
			if err != nil {
				return fmt.Errorf("--author must be a user id: %w", err)
			}

			d, err := connect(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer d.Close()

			u, err := repository.NewUserRepository(d.pool).GetByID(cmd.Context(), authorID)
			if err != nil {
				return fmt.Errorf("load author: %w", err)
			}
			if !u.Role.IsStaff() || !u.Active {
				return fmt.Errorf("author %s must be an active admin or collaborator", u.ID)
			}
			p := &model.Principal{UserID: u.ID, Role: u.Role, ClassID: u.ClassID, Name: u.Name}

			simulations := repository.NewSimulationRepository(d.pool)
			access := service.NewAccessService(simulations, repository.NewAssignmentRepository(d.pool))
			svc := service.NewSimulationService(simulations, access, d.rdb, d.cfg.PaperCacheTTL, d.log)

			sim, err := svc.Create(cmd.Context(), p, req)
			if err != nil {
				return fmt.Errorf("create simulation: %w", err)
			}
			if publish {
				published, err := svc.Publish(cmd.Context(), p, sim.ID)
				if err != nil {
					return fmt.Errorf("publish simulation %s: %w", sim.ID, err)
				}
				sim = published
			}
			return writeJSON(cmd.OutOrStdout(), sim)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "id of the staff user recorded as author")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the simulation after creating it")
	cmd.Flags().BoolVar(&check, "check", false, "validate the template without touching the database")
	return cmd
}

func newImportUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users <file.yaml>",
		Short: "Create or update accounts, keyed by email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			users, err := parseUsers(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			d, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer d.Close()

			repo := repository.NewUserRepository(d.pool)
			var failed int
			for _, u := range users {
				if u.ClassID != nil {
					ok, err := repo.ClassExists(cmd.Context(), *u.ClassID)
					if err != nil {
						return fmt.Errorf("check class %s: %w", u.ClassID, err)
					}
					if !ok {
						d.log.Warn().Str("email", u.Email).Str("class_id", u.ClassID.String()).Msg("Unknown class, user skipped")
						failed++
						continue
					}
				}
				if err := repo.Upsert(cmd.Context(), u); err != nil {
					d.log.Error().Err(err).Str("email", u.Email).Msg("Failed to import user")
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Role, u.Email)
			}

			d.log.Info().Int("imported", len(users)-failed).Int("failed", failed).Msg("User import finished")
			if failed > 0 {
				return errors.New("some users were not imported")
			}
			return nil
		},
	}
}
