package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zapdesk-io/zapdesk/internal/app"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "zapdesk",
		Short: "Zapdesk - multi-tenant WhatsApp instance dashboard backend",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newCreateUserCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.RunServer(ctx, configPath)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), configPath)
		},
	}
}

func newCreateUserCommand() *cobra.Command {
	params := app.CreateUserParams{}
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.CreateUser(cmd.Context(), configPath, params)
		},
	}
	cmd.Flags().StringVar(&params.Username, "username", "", "login name (required)")
	cmd.Flags().StringVar(&params.Password, "password", "", "password (required)")
	cmd.Flags().StringVar(&params.Name, "name", "", "display name")
	cmd.Flags().StringVar(&params.Email, "email", "", "contact email")
	cmd.Flags().BoolVar(&params.Master, "master", false, "grant the master role")
	return cmd
}
