/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/logging"
)

var (
	migrationsSource string
	migrateDownSteps int
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := db.MigrateUp(migrationsSource, db.URL(cfg.Database)); err != nil {
			return err
		}
		logging.Info().Msg("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if err := db.MigrateDown(migrationsSource, db.URL(cfg.Database), migrateDownSteps); err != nil {
			return err
		}
		logging.Info().Int("steps", migrateDownSteps).Msg("migrations rolled back")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	migrateCmd.PersistentFlags().StringVar(&migrationsSource, "source", db.DefaultMigrationsURL, "migrations source URL")
	migrateDownCmd.Flags().IntVar(&migrateDownSteps, "steps", 1, "number of migrations to roll back")
}
