package migrate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/cli"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/server/store"
	"github.com/buildbeaver/depchain/server/store/migrations"
)

func init() {
	migrateRootCmd.PersistentFlags().StringVar(
		&migrateCmdConfig.databaseDriver,
		"driver",
		string(store.Sqlite),
		"The database driver to use for migration (i.e sqlite3|postgres)")
	migrateRootCmd.PersistentFlags().StringVar(
		&migrateCmdConfig.databaseConnectionString,
		"connection",
		"",
		"The connection string for the database to migrate. Defaults to the run history of the work dir")
	migrateRootCmd.PersistentFlags().BoolVar(
		&migrateCmdConfig.skipConfirmation,
		"skip-confirmation",
		false,
		"Skip interactive confirmation and automatically answer Yes to confirmation questions")

	commands.RootCmd.AddCommand(migrateRootCmd)
	migrateRootCmd.AddCommand(migrateUpCmd)
	migrateRootCmd.AddCommand(migrateDownCmd)
	migrateRootCmd.AddCommand(migrateGotoCmd)
	migrateRootCmd.AddCommand(migrateForceCmd)
}

var migrateCmdConfig = struct {
	databaseDriver           string
	databaseConnectionString string
	skipConfirmation         bool
	migrationRunner          *migrations.GolangMigrateRunner
}{}

var migrateRootCmd = &cobra.Command{
	Use:   "migrate up|down|goto|force",
	Short: "Migrates the run history database up to the latest version, down to empty, or to a specific version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if migrateCmdConfig.databaseConnectionString == "" {
			if store.DBDriver(migrateCmdConfig.databaseDriver) != store.Sqlite {
				return fmt.Errorf("error --connection must be set for driver %s", migrateCmdConfig.databaseDriver)
			}
			config, err := utils.NewConfig(nil)
			if err != nil {
				return err
			}
			migrateCmdConfig.databaseConnectionString = string(config.DatabaseConfig.ConnectionString)
		}
		logRegistry, err := logger.NewLogRegistry("")
		if err != nil {
			return err
		}
		migrateCmdConfig.migrationRunner = migrations.NewRunHistoryMigrateRunner(logger.MakeLogrusLogFactoryStdOutPlain(logRegistry))
		return nil
	},
}

func driver() store.DBDriver {
	return store.DBDriver(migrateCmdConfig.databaseDriver)
}

func connectionString() store.DatabaseConnectionString {
	return store.DatabaseConnectionString(migrateCmdConfig.databaseConnectionString)
}

func parseVersion(arg string) (uint, error) {
	version, err := strconv.Atoi(arg)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("error: version must be a valid number")
	}
	return uint(version), nil
}

var migrateUpCmd = &cobra.Command{
	Use:           "up",
	Short:         "Migrates the database up to the latest version",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := migrateCmdConfig.migrationRunner.Up(context.Background(), driver(), connectionString())
		if err != nil {
			return fmt.Errorf("error running 'up' migration: %w", err)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:           "down",
	Short:         "Migrates the database down to being empty",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cli.AskForConfirmation("Running a Down migration will remove ALL run history from this database. Are you sure?", migrateCmdConfig.skipConfirmation) {
			cli.Stdout.Printf("Down migration cancelled.")
			return nil
		}
		err := migrateCmdConfig.migrationRunner.Down(context.Background(), driver(), connectionString())
		if err != nil {
			return fmt.Errorf("error running 'down' migration: %w", err)
		}
		return nil
	},
}

var migrateGotoCmd = &cobra.Command{
	Use:           "goto V",
	Short:         "Migrates the database up or down as required to be at specific version V",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		if !cli.AskForConfirmation("Running a Goto migration will sometimes REMOVE data from this database. Are you sure?", migrateCmdConfig.skipConfirmation) {
			cli.Stdout.Printf("Goto migration cancelled.")
			return nil
		}
		err = migrateCmdConfig.migrationRunner.Goto(context.Background(), driver(), connectionString(), version)
		if err != nil {
			return fmt.Errorf("error running 'goto' migration: %w", err)
		}
		return nil
	},
}

var migrateForceCmd = &cobra.Command{
	Use:           "force V",
	Short:         "Marks the database as being clean and in version V, but don't run migrations",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := parseVersion(args[0])
		if err != nil {
			return err
		}
		if !cli.AskForConfirmation("Running a Force migration should only be performed after the database has been manually checked and fixed. Are you sure?", migrateCmdConfig.skipConfirmation) {
			cli.Stdout.Printf("Force migration cancelled.")
			return nil
		}
		err = migrateCmdConfig.migrationRunner.Force(context.Background(), driver(), connectionString(), version)
		if err != nil {
			return fmt.Errorf("error running 'force' operation: %w", err)
		}
		return nil
	},
}
