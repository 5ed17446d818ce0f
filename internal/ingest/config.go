package ingest

import (
	"time"

	"github.com/helixir/paper-ingest-service/internal/config"
	"github.com/helixir/paper-ingest-service/internal/dedup"
)

// Engine defaults, used when the corresponding Config field is zero.
const (
	DefaultCapacity        = 10000
	DefaultSafetyOverlap   = 48 * time.Hour
	DefaultInitialLookback = 30 * 24 * time.Hour

	DefaultHorizonMonths    = 24
	DefaultMaxMonthsPerScan = 3
	DefaultSlack            = 72 * time.Hour
	DefaultSmallCorpusSize  = 500
	DefaultSmallThreshold   = 5
	DefaultLargeThreshold   = 20
)

// Trigger names what started a cycle. It is only used for logging.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerStartup  Trigger = "startup"
	TriggerHTTP     Trigger = "http"
	TriggerKafka    Trigger = "kafka"
	TriggerTemporal Trigger = "temporal"
	TriggerCLI      Trigger = "cli"
)

// Config holds the engine tuning knobs.
type Config struct {
	// Capacity bounds the corpus size. Zero means DefaultCapacity; negative
	// disables the bound.
	Capacity int

	// SafetyOverlap is subtracted from Watermark.Newest to build the fetch threshold.
	SafetyOverlap time.Duration

	// InitialLookback is the fetch window used before any watermark exists.
	InitialLookback time.Duration

	// DedupPolicy selects the identity key collision policy.
	DedupPolicy dedup.Policy

	// CycleTimeout bounds one cycle including backfill. Zero means no bound
	// beyond the caller's context.
	CycleTimeout time.Duration

	Backfill BackfillConfig
}

// BackfillConfig configures the gap backfill scanner.
type BackfillConfig struct {
	Enabled bool

	// HorizonMonths limits the scan to this many months before Watermark.Newest.
	HorizonMonths int

	// MaxMonthsPerScan caps the months fetched in one pass.
	MaxMonthsPerScan int

	// Slack widens each month window on both edges.
	Slack time.Duration

	Density DensityPolicy
}

// DensityPolicy is the step function that decides the minimum record count
// a month needs before it is no longer considered a gap.
type DensityPolicy struct {
	// SmallCorpusSize is the corpus size below which SmallThreshold applies.
	SmallCorpusSize int
	SmallThreshold  int
	LargeThreshold  int
}

// Threshold returns the minimum monthly count for a corpus of the given size.
func (p DensityPolicy) Threshold(corpusSize int) int {
	if corpusSize < p.SmallCorpusSize {
		return p.SmallThreshold
	}
	return p.LargeThreshold
}

func (c *Config) applyDefaults() {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.SafetyOverlap == 0 {
		c.SafetyOverlap = DefaultSafetyOverlap
	}
	if c.InitialLookback <= 0 {
		c.InitialLookback = DefaultInitialLookback
	}
	if !c.DedupPolicy.IsValid() {
		c.DedupPolicy = dedup.PolicyAnyKey
	}

	b := &c.Backfill
	if b.HorizonMonths <= 0 {
		b.HorizonMonths = DefaultHorizonMonths
	}
	if b.MaxMonthsPerScan <= 0 {
		b.MaxMonthsPerScan = DefaultMaxMonthsPerScan
	}
	if b.Slack == 0 {
		b.Slack = DefaultSlack
	}
	if b.Density == (DensityPolicy{}) {
		b.Density = DensityPolicy{
			SmallCorpusSize: DefaultSmallCorpusSize,
			SmallThreshold:  DefaultSmallThreshold,
			LargeThreshold:  DefaultLargeThreshold,
		}
	}
}

// ConfigFromSettings maps the service configuration onto engine settings.
// A zero configured capacity disables the bound.
func ConfigFromSettings(cfg *config.Config) Config {
	capacity := cfg.Engine.Capacity
	if capacity == 0 {
		capacity = -1
	}
	return Config{
		Capacity:        capacity,
		SafetyOverlap:   cfg.Engine.SafetyOverlap,
		InitialLookback: cfg.Engine.InitialLookback,
		DedupPolicy:     dedup.Policy(cfg.Engine.DedupPolicy),
		CycleTimeout:    cfg.Engine.CycleTimeout,
		Backfill: BackfillConfig{
			Enabled:          cfg.Backfill.Enabled,
			HorizonMonths:    cfg.Backfill.HorizonMonths,
			MaxMonthsPerScan: cfg.Backfill.MaxMonthsPerScan,
			Slack:            cfg.Backfill.Slack,
			Density: DensityPolicy{
				SmallCorpusSize: cfg.Backfill.SmallCorpusSize,
				SmallThreshold:  cfg.Backfill.SmallThreshold,
				LargeThreshold:  cfg.Backfill.LargeThreshold,
			},
		},
	}
}
