package main

import (
	"github.com/spf13/cobra"

	"github.com/helixir/paper-ingest-service/internal/app"
	"github.com/helixir/paper-ingest-service/internal/ingest"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion cycle",
	Long: `run fetches every enabled provider from the current watermark, merges the
unique records into the corpus and saves the snapshot. A zero-yield cycle
runs the gap backfill scanner when backfill is enabled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			result, err := a.Engine.RunCycle(cmd.Context(), ingest.TriggerCLI)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printCycle(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Scan the corpus for sparse months and refetch them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app.App) error {
			result, err := a.Engine.RunBackfill(cmd.Context(), ingest.TriggerCLI)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printBackfill(cmd.OutOrStdout(), result)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backfillCmd)
}
