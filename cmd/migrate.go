package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rgknow/edurag/db"
	"github.com/rgknow/edurag/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	logger := initLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.StorageMode != config.StoragePostgres {
		return fmt.Errorf("migrations require storage_mode=postgres, got %q", cfg.StorageMode)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied", "host", cfg.PostgresHost, "db", cfg.PostgresDBName)
	return nil
}
