// Package domain provides domain models and business logic for the Paper Ingest Service.
package domain

// SourceType identifies the upstream provider that supplied a record.
// These values are also the provider prefix of identity keys and must match
// the provider names used in configuration.
type SourceType string

const (
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypeSemanticScholar SourceType = "semanticscholar"
	SourceTypeEuropePMC       SourceType = "europepmc"
	SourceTypeHuggingFace     SourceType = "huggingface"
	SourceTypeFeed            SourceType = "feed"
)

// IdentifierDOI keys a record's DOI in ProviderIDs. It is shared by every
// provider that reports DOIs and is not itself a provider.
const IdentifierDOI SourceType = "doi"

// String returns the string representation of the source type.
func (s SourceType) String() string {
	return string(s)
}

// IsValidSourceType reports whether s names a known provider.
func IsValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypeArXiv, SourceTypeOpenAlex, SourceTypeSemanticScholar,
		SourceTypeEuropePMC, SourceTypeHuggingFace, SourceTypeFeed:
		return true
	}
	return false
}

// CycleState is the position of the ingestion engine within one update cycle.
type CycleState string

const (
	CycleStateIdle          CycleState = "idle"
	CycleStateFetching      CycleState = "fetching"
	CycleStateDeduplicating CycleState = "deduplicating"
	CycleStateNoNewData     CycleState = "no_new_data"
	CycleStateEnriching     CycleState = "enriching"
	CycleStateMerging       CycleState = "merging"
	CycleStatePersisting    CycleState = "persisting"
	CycleStateBackfilling   CycleState = "backfilling"
)

// IsRunning reports whether the state belongs to an in-flight cycle.
func (s CycleState) IsRunning() bool {
	return s != CycleStateIdle && s != ""
}

// CycleOutcome summarizes how an ingestion cycle ended.
type CycleOutcome string

const (
	// CycleOutcomeMerged means new records were merged and persisted.
	CycleOutcomeMerged CycleOutcome = "merged"
	// CycleOutcomeNoNewData means every candidate was already known.
	CycleOutcomeNoNewData CycleOutcome = "no_new_data"
	// CycleOutcomeZeroYield means no provider returned any candidate.
	CycleOutcomeZeroYield CycleOutcome = "zero_yield"
	// CycleOutcomeFailed means the cycle aborted without persisting.
	CycleOutcomeFailed CycleOutcome = "failed"
	// CycleOutcomeSkipped means another cycle was already running.
	CycleOutcomeSkipped CycleOutcome = "skipped"
)
