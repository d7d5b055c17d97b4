/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yamdb/apiserver/internal/db"
	"github.com/yamdb/apiserver/internal/logging"
	"github.com/yamdb/apiserver/internal/services"
	"github.com/yamdb/apiserver/internal/store"
)

var (
	adminUsername string
	adminEmail    string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account or promote an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminUsername == "" {
			return errors.New("--username is required")
		}
		cfg := loadConfig()

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		users := services.NewUserService(store.NewUserRepository(conn), nil)
		user, err := users.EnsureAdmin(cmd.Context(), adminUsername, adminEmail)
		if err != nil {
			return err
		}

		logging.Info().Str("username", user.Username).Msg("admin account ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "username of the admin account")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "email, required when the account does not exist yet")
}
