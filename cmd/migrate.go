// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the pending SQL migrations of the PodM store, including the task
queue table. Migrations already applied are skipped.`,
	PreRun: bindFlags,
	Run:    runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	f := migrateCmd.Flags()
	f.String("db_driver", driverPostgres, "Database driver (postgres, mysql)")
	f.String("db_dsn", "", "Database connection string")

}

func runMigrate(cmd *cobra.Command, args []string) {
	f := NewFlagLoader(cmd)
	opts := dbOpts{Driver: f.String("db_driver"), DSN: f.String("db_dsn")}
	if opts.Driver == driverMemory {
		logger.Fatal().Msg("the memory store has no migrations")
	}

	st, err := openStore(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	if err := st.Migrate(cmd.Context()); err != nil {
		logger.Fatal().Err(err).Msg("failed to run database migrations")
	}
	logger.Info().Str("driver", opts.Driver).Msg("migrations applied")
}
