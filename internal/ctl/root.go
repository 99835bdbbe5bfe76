// Package ctl implements ipsctl, the administrative command line for an ips
// installation: schema migrations, user provisioning and offline comparisons.
package ctl

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/flagx"
	"github.com/ipsvault/ips/internal/logging"
	"github.com/ipsvault/ips/internal/server/config"
	"github.com/ipsvault/ips/internal/server/repositories/repomanager"
	"github.com/spf13/cobra"
)

const busyTimeout = 5 * time.Second

type options struct {
	configPath string
	dbPath     string
}

// NewRootCommand assembles the ipsctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "ipsctl",
		Short:         "Administer an ips installation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the JSON config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database file (overrides the config)")

	root.AddCommand(
		newMigrateCommand(opts),
		newUserAddCommand(opts),
		newCompareCodeCommand(),
		newCompareImagesCommand(),
	)

	return root
}

// load resolves the server configuration the same way the server does,
// minus its command-line flags, then applies the ipsctl overrides.
func (o *options) load() *config.Config {
	if o.configPath != "" {
		os.Setenv(flagx.ConfigEnvVar, o.configPath)
	}
	cfg := config.LoadEnvConfig()
	if o.dbPath != "" {
		cfg.DatabaseDSN = o.dbPath
	}
	return cfg
}

// openMigrated opens the configured database and brings its schema up to date.
func openMigrated(ctx context.Context, cfg *config.Config, w io.Writer) (*sql.DB, repomanager.RepositoryManager, error) {
	logger := logging.New(w, cfg.LogLevel).With("module", "ipsctl")

	db, err := dbx.OpenSQLite(ctx, cfg.DatabaseDSN, busyTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	rm, err := repomanager.NewSQLiteRepositoryManager(logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return db, rm, nil
}
