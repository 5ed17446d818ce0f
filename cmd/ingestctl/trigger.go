package main

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-ingest-service/internal/observability"
	"github.com/helixir/paper-ingest-service/internal/temporal"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start an ingestion workflow on the Temporal worker",
	Long: `trigger asks the Temporal worker to run one ingestion cycle instead of
running it in this process. With --wait it blocks until the workflow
finishes and prints its result.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cmd)
		backfill, _ := cmd.Flags().GetBool("backfill")
		wait, _ := cmd.Flags().GetBool("wait")

		c, err := temporal.NewClient(temporal.ClientConfig{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			TaskQueue: cfg.Temporal.TaskQueue,
			Logger:    observability.NewTemporalLogger(logger),
		})
		if err != nil {
			return fmt.Errorf("connect to temporal: %w", err)
		}
		client := temporal.NewIngestionClient(c, cfg.Temporal.TaskQueue)
		defer client.Close()

		workflowID, runID, err := client.StartRun(cmd.Context(), temporal.IngestionWorkflowInput{
			Backfill:    backfill,
			RequestedBy: requester(),
		})
		if err != nil {
			return err
		}

		if !wait {
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), map[string]string{"workflow_id": workflowID, "run_id": runID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s (run %s)\n", workflowID, runID)
			return nil
		}

		var result map[string]any
		if err := client.GetWorkflowResult(cmd.Context(), workflowID, runID, &result); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func requester() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "ingestctl:" + u.Username
	}
	return "ingestctl"
}

func init() {
	triggerCmd.Flags().Bool("backfill", false, "run a gap backfill after the cycle")
	triggerCmd.Flags().Bool("wait", false, "wait for the workflow result")
	rootCmd.AddCommand(triggerCmd)
}
