package main

import (
	"os"

	"github.com/nimasrn/intake-gateway/internal/config"
	"github.com/nimasrn/intake-gateway/migrations"
	"github.com/nimasrn/intake-gateway/pkg/logger"
	"github.com/nimasrn/intake-gateway/pkg/pg"
	"github.com/spf13/cobra"
)

var envPath string

var rootCmd = &cobra.Command{
	Use:           "cli",
	Short:         "Operational tasks for the intake gateway database",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envPath == "" {
			if _, err := os.Stat(".env"); err == nil {
				envPath = ".env"
			}
		}
		return config.Load(envPath)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pg.Migrate(writeConfig(), migrations.FS, migrations.Dir)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the state of every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pg.MigrationStatus(writeConfig(), migrations.FS, migrations.Dir)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "path to an env file (defaults to ./.env when present)")
	migrateCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func writeConfig() pg.Config {
	return pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		logger.Error("migration: error running command", "error", err)
		os.Exit(1)
	}
}
