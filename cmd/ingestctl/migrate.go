package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/paper-ingest-service/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the Postgres snapshot schema",
	Long: `migrate applies the snapshot schema to the configured Postgres database.
Migrations compiled into the binary are used unless database.migration_path
or --path names a directory. The sqlite and file backends create their own
schema and need no migrations.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Info().Msg("running all pending migrations")
			if err := m.Up(); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			return printMigrationVersion(cmd, m)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Msg("rolling back all migrations")
			if err := m.Down(); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			return printMigrationVersion(cmd, m)
		})
	},
}

var migrateStepsCmd = &cobra.Command{
	Use:   "steps <n>",
	Short: "Apply n migrations (negative n rolls back)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n == 0 {
			return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
		}
		return withMigrator(cmd, func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Info().Int("steps", n).Msg("running migration steps")
			if err := m.Steps(n); err != nil {
				return fmt.Errorf("migrate steps: %w", err)
			}
			return printMigrationVersion(cmd, m)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current migration version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(cmd, func(m *database.Migrator, _ zerolog.Logger) error {
			return printMigrationVersion(cmd, m)
		})
	},
}

var migrateForceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Force the recorded version after a failed migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
		}
		return withMigrator(cmd, func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Int("version", v).Msg("forcing migration version")
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			return printMigrationVersion(cmd, m)
		})
	},
}

func withMigrator(cmd *cobra.Command, fn func(*database.Migrator, zerolog.Logger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd).With().Str("component", "migrate").Logger()

	path := cfg.Database.MigrationPath
	if override, _ := cmd.Flags().GetString("path"); override != "" {
		path = override
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	m, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("failed to close migrator")
		}
	}()

	return fn(m, logger)
}

func printMigrationVersion(cmd *cobra.Command, m *database.Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	if jsonOutput(cmd) {
		return printJSON(cmd.OutOrStdout(), map[string]any{"version": v, "dirty": dirty})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
	return nil
}

func init() {
	migrateCmd.PersistentFlags().String("path", "", "read migrations from this directory instead of the embedded set")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStepsCmd, migrateVersionCmd, migrateForceCmd)
	rootCmd.AddCommand(migrateCmd)
}
