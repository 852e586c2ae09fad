package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/prepscuola/simulazioni-backend/internal/repository"
	"github.com/prepscuola/simulazioni-backend/internal/service"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for an existing user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			d, err := connect(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer d.Close()

			u, err := repository.NewUserRepository(d.pool).GetByID(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("load user: %w", err)
			}
			if !u.Active {
				return fmt.Errorf("user %s is not active", u.ID)
			}
			tok, err := service.NewAuthService(d.cfg).GenerateToken(u)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
