package dedup

import (
	"maps"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// KeySet is a set of identity keys.
type KeySet map[string]struct{}

// NewKeySet returns a set holding keys.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// KeysOf returns the union of the identity keys of records.
func KeysOf(records []domain.Record) KeySet {
	s := make(KeySet, len(records)*2)
	for _, r := range records {
		s.AddAll(IdentityKeys(r))
	}
	return s
}

// Add inserts key into the set.
func (s KeySet) Add(key string) {
	s[key] = struct{}{}
}

// AddAll inserts every key into the set.
func (s KeySet) AddAll(keys []string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Has reports whether key is in the set.
func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Len returns the number of keys.
func (s KeySet) Len() int {
	return len(s)
}

// Clone returns an independent copy of the set. A nil set clones to an empty one.
func (s KeySet) Clone() KeySet {
	if s == nil {
		return KeySet{}
	}
	return maps.Clone(s)
}

// Policy selects how identity key collisions are resolved.
type Policy string

const (
	// PolicyAnyKey drops a record when any of its identity keys was already
	// seen, whether in the existing corpus or earlier in the batch.
	PolicyAnyKey Policy = "any_key"

	// PolicyProviderIDPrecedence applies PolicyAnyKey against the existing
	// corpus, but inside a batch a record whose only collision is a title
	// shared with an earlier batch record is kept when both carry provider
	// identifiers.
	//
	// Under this policy the corpus may hold two records with the same
	// normalized title. Title uniqueness holds only with PolicyAnyKey.
	PolicyProviderIDPrecedence Policy = "provider_id_precedence"
)

// IsValid reports whether p is a known policy.
func (p Policy) IsValid() bool {
	return p == PolicyAnyKey || p == PolicyProviderIDPrecedence
}

// Deduper removes duplicate records from a batch under a collision policy.
// The zero value uses PolicyAnyKey.
type Deduper struct {
	Policy Policy
}

// Dedupe is Deduper{Policy: PolicyAnyKey}.Dedupe.
func Dedupe(batch []domain.Record, existing KeySet) ([]domain.Record, int) {
	return Deduper{Policy: PolicyAnyKey}.Dedupe(batch, existing)
}

// Dedupe returns the records of batch that are a first sighting by every
// identity key, in input order, and the number of records dropped. The seen
// set starts as a copy of existing; existing itself is never modified. When
// two batch records collide the earlier one is kept.
func (d Deduper) Dedupe(batch []domain.Record, existing KeySet) ([]domain.Record, int) {
	seen := existing.Clone()
	// Title keys first claimed inside this batch, mapped to whether the
	// claiming record carried provider identifiers.
	batchTitles := make(map[string]bool)

	unique := make([]domain.Record, 0, len(batch))
	dropped := 0

	for _, r := range batch {
		keys := IdentityKeys(r)
		providerKeys, titleKey := keys[:len(keys)-1], keys[len(keys)-1]

		if d.isDuplicate(seen, batchTitles, providerKeys, titleKey) {
			dropped++
			continue
		}

		if !seen.Has(titleKey) {
			batchTitles[titleKey] = len(providerKeys) > 0
		}
		seen.AddAll(keys)
		unique = append(unique, r)
	}

	return unique, dropped
}

func (d Deduper) isDuplicate(seen KeySet, batchTitles map[string]bool, providerKeys []string, titleKey string) bool {
	for _, k := range providerKeys {
		if seen.Has(k) {
			return true
		}
	}
	if !seen.Has(titleKey) {
		return false
	}
	if d.Policy == PolicyProviderIDPrecedence && len(providerKeys) > 0 {
		// Only a title claimed earlier in this batch by a record that had
		// its own provider identifiers can be overridden.
		return !batchTitles[titleKey]
	}
	return true
}
