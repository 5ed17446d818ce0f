// Package activities implements the Temporal activities of the ingestion
// workflow. Activities are thin adapters over the ingestion engine.
package activities

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
)

// Application error types returned by the activities. The workflow marks
// ErrTypeInvalidInput as non-retryable.
const (
	ErrTypeInvalidInput = "invalid_input"
	ErrTypePersistence  = "persistence"
)

// heartbeatInterval is how often a running cycle reports liveness.
const heartbeatInterval = 10 * time.Second

// Runner runs cycles and backfills. *ingest.Engine implements it.
type Runner interface {
	RunCycle(ctx context.Context, trigger ingest.Trigger) (ingest.CycleResult, error)
	RunBackfill(ctx context.Context, trigger ingest.Trigger) (ingest.BackfillResult, error)
}

// RunCycleInput is the input of the RunCycle activity.
type RunCycleInput struct {
	RequestedBy string
}

// RunCycleOutput summarises one cycle for the workflow history.
type RunCycleOutput struct {
	CycleID          string
	Outcome          string
	Candidates       int
	Unique           int
	Dropped          int
	Enriched         int
	Evicted          int
	ProviderFailures map[string]string
	BackfillFilled   int
	BackfillAdded    int
}

// RunBackfillInput is the input of the RunBackfill activity.
type RunBackfillInput struct {
	RequestedBy string
}

// RunBackfillOutput summarises one backfill pass.
type RunBackfillOutput struct {
	Threshold int
	Flagged   []string
	Attempted []string
	Filled    []string
	Added     int
	Errors    map[string]string
}

// CycleActivities provides the ingestion activities. Methods on this struct
// are registered as Temporal activities via the worker.
type CycleActivities struct {
	runner Runner
}

// NewCycleActivities creates a new CycleActivities instance.
func NewCycleActivities(runner Runner) *CycleActivities {
	return &CycleActivities{runner: runner}
}

// RunCycle runs one ingestion cycle. A cycle already running in this or
// another process is reported as a skipped outcome, not an error.
func (a *CycleActivities) RunCycle(ctx context.Context, input RunCycleInput) (*RunCycleOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("starting ingestion cycle", "requestedBy", input.RequestedBy)

	stop := startHeartbeat(ctx)
	result, err := a.runner.RunCycle(ctx, ingest.TriggerTemporal)
	stop()

	out := &RunCycleOutput{
		CycleID:          result.CycleID,
		Outcome:          string(result.Outcome),
		Candidates:       result.Candidates,
		Unique:           result.Unique,
		Dropped:          result.Dropped,
		Enriched:         result.Enriched,
		Evicted:          result.Evicted,
		ProviderFailures: result.ProviderFailures,
	}
	if result.Backfill != nil {
		out.BackfillFilled = len(result.Backfill.Filled)
		out.BackfillAdded = result.Backfill.Added
	}

	if errors.Is(err, domain.ErrCycleInProgress) {
		logger.Info("ingestion cycle already running, skipped")
		out.Outcome = string(domain.CycleOutcomeSkipped)
		return out, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	logger.Info("ingestion cycle completed",
		"cycleID", out.CycleID,
		"outcome", out.Outcome,
		"unique", out.Unique,
		"providerFailures", len(out.ProviderFailures),
	)
	return out, nil
}

// RunBackfill runs one gap backfill pass.
func (a *CycleActivities) RunBackfill(ctx context.Context, input RunBackfillInput) (*RunBackfillOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("starting backfill", "requestedBy", input.RequestedBy)

	stop := startHeartbeat(ctx)
	result, err := a.runner.RunBackfill(ctx, ingest.TriggerTemporal)
	stop()

	if errors.Is(err, domain.ErrCycleInProgress) {
		logger.Info("ingestion cycle already running, backfill skipped")
		return &RunBackfillOutput{}, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	out := &RunBackfillOutput{
		Threshold: result.Threshold,
		Flagged:   monthStrings(result.Flagged),
		Attempted: monthStrings(result.Attempted),
		Filled:    monthStrings(result.Filled),
		Added:     result.Added,
		Errors:    result.Errors,
	}
	logger.Info("backfill completed", "flagged", len(out.Flagged), "filled", len(out.Filled), "added", out.Added)
	return out, nil
}

// classify converts engine errors into Temporal application errors so the
// workflow retry policy can tell them apart.
func classify(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	case errors.Is(err, domain.ErrPersistence):
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrTypePersistence, err)
	default:
		return err
	}
}

// startHeartbeat records a heartbeat every heartbeatInterval until the
// returned stop function is called.
func startHeartbeat(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

func monthStrings(months []ingest.Month) []string {
	out := make([]string, 0, len(months))
	for _, m := range months {
		out = append(out, m.String())
	}
	return out
}
