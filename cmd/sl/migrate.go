package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply postgres schema migrations",
	Long: `Apply all pending schema migrations to the configured postgres
database. SQLite databases need no migration step; their schema is applied
on open.

The connection string comes from --db, SL_DATABASE_URL, or a .env file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := config.DatabaseURL()
		if dsn == "" {
			return fmt.Errorf("no connection string configured (--db or SL_DATABASE_URL)")
		}
		if err := postgres.Migrate(dsn); err != nil {
			return err
		}
		fmt.Println("Migrations applied successfully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
