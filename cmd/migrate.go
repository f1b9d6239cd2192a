package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/koopa0/korpus/db"
	"github.com/koopa0/korpus/internal/config"
	"github.com/koopa0/korpus/internal/log"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Applies all pending schema migrations to the configured PostgreSQL
database. Migrations are embedded in the binary and tracked in the
schema_migrations table; running migrate on an up-to-date database is a
no-op.

Every other command also migrates on startup; this command exists for
deploy pipelines that migrate before rolling out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(log.New(log.Config{Level: logLevel(cfg.LogLevel), JSON: cfg.LogJSON}))

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Println("migrations applied")
	return nil
}
