package ingest

import (
	"time"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// CycleResult describes one ingestion cycle.
type CycleResult struct {
	CycleID string              `json:"cycle_id,omitempty"`
	Outcome domain.CycleOutcome `json:"outcome"`

	// Threshold is the lower bound of the fetch window.
	Threshold time.Time `json:"threshold"`

	Candidates int `json:"candidates"`
	Unique     int `json:"unique"`
	Dropped    int `json:"dropped"`
	Enriched   int `json:"enriched"`
	Evicted    int `json:"evicted"`

	// ProviderFailures maps a provider to the error it returned.
	ProviderFailures map[string]string `json:"provider_failures,omitempty"`

	// Backfill is set when the cycle ran the gap backfill scanner.
	Backfill *BackfillResult `json:"backfill,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

