// Package workflows defines the Temporal workflow that drives ingestion
// cycles from a Temporal worker.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	litemporal "github.com/helixir/paper-ingest-service/internal/temporal"
	"github.com/helixir/paper-ingest-service/internal/temporal/activities"
)

const (
	// SignalCancel is the signal name for cancelling a running ingestion workflow.
	SignalCancel = "cancel"

	cycleActivityTimeout = 30 * time.Minute
	cycleHeartbeat       = time.Minute
)

// IngestionWorkflowInput is shared with the client so both sides agree on the payload.
type IngestionWorkflowInput = litemporal.IngestionWorkflowInput

// IngestionWorkflowResult is returned when the workflow completes.
type IngestionWorkflowResult struct {
	CycleID          string
	Outcome          string
	Unique           int
	Evicted          int
	ProviderFailures []string
	BackfillFilled   int
	BackfillAdded    int
	Duration         float64
}

// workflowProgress is exposed via the QueryProgress query handler.
type workflowProgress struct {
	Phase          string
	Outcome        string
	Unique         int
	BackfillFilled int
}

// IngestionWorkflow runs one ingestion cycle and, when requested, one
// explicit backfill pass afterwards. A scheduled run (cron) starts a fresh
// execution of this workflow on every tick.
func IngestionWorkflow(ctx workflow.Context, input IngestionWorkflowInput) (*IngestionWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	progress := &workflowProgress{Phase: "initializing"}
	err := workflow.SetQueryHandler(ctx, litemporal.QueryProgress, func() (*workflowProgress, error) {
		return progress, nil
	})
	if err != nil {
		logger.Error("failed to register progress query handler", "error", err)
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	cancelCtx, cancelFunc := workflow.WithCancel(ctx)
	signalCh := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		signalCh.Receive(gCtx, nil)
		logger.Info("received cancel signal")
		cancelFunc()
	})

	var cycleAct *activities.CycleActivities

	actCtx := workflow.WithActivityOptions(cancelCtx, workflow.ActivityOptions{
		StartToCloseTimeout: cycleActivityTimeout,
		HeartbeatTimeout:    cycleHeartbeat,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        2 * time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{activities.ErrTypeInvalidInput},
		},
	})

	progress.Phase = "ingesting"
	var cycle activities.RunCycleOutput
	err = workflow.ExecuteActivity(actCtx, cycleAct.RunCycle, activities.RunCycleInput{
		RequestedBy: input.RequestedBy,
	}).Get(actCtx, &cycle)
	if err != nil {
		progress.Phase = "failed"
		logger.Error("ingestion cycle failed", "error", err)
		// Returned as is so the application error type reaches the caller.
		return nil, err
	}
	progress.Outcome = cycle.Outcome
	progress.Unique = cycle.Unique
	progress.BackfillFilled = cycle.BackfillFilled

	result := &IngestionWorkflowResult{
		CycleID:          cycle.CycleID,
		Outcome:          cycle.Outcome,
		Unique:           cycle.Unique,
		Evicted:          cycle.Evicted,
		ProviderFailures: SortedMapKeys(cycle.ProviderFailures),
		BackfillFilled:   cycle.BackfillFilled,
		BackfillAdded:    cycle.BackfillAdded,
	}
	for _, provider := range result.ProviderFailures {
		logger.Warn("provider failed during cycle", "provider", provider, "error", cycle.ProviderFailures[provider])
	}

	if input.Backfill {
		progress.Phase = "backfilling"
		var backfill activities.RunBackfillOutput
		err = workflow.ExecuteActivity(actCtx, cycleAct.RunBackfill, activities.RunBackfillInput{
			RequestedBy: input.RequestedBy,
		}).Get(actCtx, &backfill)
		if err != nil {
			progress.Phase = "failed"
			logger.Error("backfill failed", "error", err)
			return nil, err
		}
		result.BackfillFilled += len(backfill.Filled)
		result.BackfillAdded += backfill.Added
		progress.BackfillFilled = result.BackfillFilled
	}

	progress.Phase = "completed"
	result.Duration = workflow.Now(ctx).Sub(startTime).Seconds()
	logger.Info("ingestion workflow completed",
		"cycleID", result.CycleID,
		"outcome", result.Outcome,
		"backfillFilled", result.BackfillFilled,
	)
	return result, nil
}
