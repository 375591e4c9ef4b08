package main

import (
	"fmt"

	"github.com/akshat-collab/code-battle-arena/internal/config"
	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate up|down",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(database.MigrateUp), string(database.MigrateDown)},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(".env")
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dsn") {
			cfg.DatabaseDSN, _ = cmd.Flags().GetString("dsn")
		}
		if cfg.DatabaseDSN == "" {
			return fmt.Errorf("database DSN cannot be empty")
		}

		return database.Migrate(cfg.DatabaseDSN, database.MigrateDirection(args[0]), newLogger())
	},
}

func init() {
	migrateCmd.Flags().String("dsn", "", "database connection string")
	rootCmd.AddCommand(migrateCmd)
}
