package ctl

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.load()

			db, _, err := openMigrated(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "database %s is up to date\n", cfg.DatabaseDSN)
			return nil
		},
	}
}
