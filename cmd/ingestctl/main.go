// Package main is the entry point for ingestctl, the operator CLI of the
// paper ingest service. It runs cycles and backfills against the configured
// store, inspects the corpus and manages database migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/helixir/paper-ingest-service/internal/app"
	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/observability"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "ingestctl",
	Short: "Operate the paper ingest service",
	Long: `ingestctl runs ingestion cycles and gap backfills against the configured
snapshot store, prints corpus statistics and the watermark, looks up papers
on the Hugging Face Hub and manages database migrations.

Configuration is read the same way the server reads it: config.yaml in the
working directory, ./config or /etc/paper-ingest, overridden by PAPERINGEST_*
environment variables. --config selects an explicit file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level for diagnostics written to stderr")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads configuration, honouring --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	}
	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return observability.NewLogger(observability.LoggingConfig{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "ingestctl").Logger()
}

func jsonOutput(cmd *cobra.Command) bool {
	on, _ := cmd.Flags().GetBool("json")
	return on
}

// withApp assembles the engine, calls fn and tears everything down.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, newLogger(cmd), app.Options{ServiceName: "ingestctl"})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
