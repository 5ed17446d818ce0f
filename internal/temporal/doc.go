// Package temporal provides Temporal client integration for the paper ingest
// service.
//
// The ingestion engine normally runs cycles from the in-process scheduler.
// When a deployment prefers Temporal for scheduling and retries, the worker
// binary registers IngestionWorkflow and the CycleActivities, and the
// IngestionClient keeps a cron workflow running on the configured schedule.
//
// # Client Setup
//
//	c, err := temporal.NewIngestionClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "default",
//	    TaskQueue: "paper-ingest-tasks",
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
// # Starting Workflows
//
// Start a one-off run, optionally followed by a backfill pass:
//
//	wfID, runID, err := c.StartRun(ctx, temporal.IngestionWorkflowInput{
//	    Backfill:    true,
//	    RequestedBy: "ops",
//	})
//
// Keep a scheduled run alive. Starting an already running cron workflow
// returns the existing run:
//
//	runID, err := c.EnsureSchedule(ctx, "paper-ingest-cron", "*/30 * * * *", temporal.IngestionWorkflowInput{})
//
// # Error Handling
//
//	if temporal.IsWorkflowNotFound(err) {
//	    // Workflow doesn't exist or already completed
//	}
//
// Activities report invalid input as a non-retryable application error of
// type "invalid_input". Persistence failures are retried by the workflow
// retry policy.
package temporal
