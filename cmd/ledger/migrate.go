package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paper-ledger/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending PostgreSQL migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			if cfg.Database.Backend != "postgres" {
				return fmt.Errorf("migrate only applies to the postgres backend; sqlite bootstraps its own schema")
			}

			db, err := database.New(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			migrationsPath := os.Getenv("MIGRATIONS_PATH")
			if migrationsPath == "" {
				migrationsPath = "db/migrations"
			}
			if err := db.Migrate(migrationsPath); err != nil {
				return err
			}
			log.Info().Str("path", migrationsPath).Msg("migrations applied")
			return nil
		},
	}
}
