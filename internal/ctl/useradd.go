package ctl

import (
	"errors"
	"fmt"

	"github.com/ipsvault/ips/internal/common"
	"github.com/ipsvault/ips/internal/server/services"
	"github.com/spf13/cobra"
)

func newUserAddCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "useradd <username> <email>",
		Short: "Create a user account",
		Long: `Create a user account directly in the database.
The password is read from the terminal and must be entered twice.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, email := args[0], args[1]

			password, err := confirmPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}

			cfg := opts.load()
			db, rm, err := openMigrated(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := services.NewUserService(db, rm, cfg).Register(cmd.Context(), username, email, password)
			if err != nil {
				if errors.Is(err, common.ErrorValidation) {
					return fmt.Errorf("cannot create user: %w", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "user %s created with id %d\n", user.UserName, user.ID)
			return nil
		},
	}
}
