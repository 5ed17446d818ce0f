// Package dedup derives identity keys for records and removes records that
// refer to an item already seen, either earlier in the same batch or in the
// existing corpus.
package dedup

import (
	"slices"
	"strings"
	"unicode"

	"github.com/helixir/paper-ingest-service/internal/domain"
)

// titleKeyPrefix prefixes the normalized-title identity key.
const titleKeyPrefix = "title:"

// IdentityKeys returns the identity keys of a record: one "provider:nativeId"
// key per non-empty provider identifier, sorted by provider, followed by
// exactly one "title:<normalized>" key. The title key is present even when the
// normalized title is empty.
func IdentityKeys(r domain.Record) []string {
	keys := make([]string, 0, len(r.ProviderIDs)+1)
	for provider, id := range r.ProviderIDs {
		if key, ok := ProviderKey(provider, id); ok {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return append(keys, TitleKey(r.Title))
}

// ProviderKey formats a provider identity key. It returns false when either
// part is blank.
func ProviderKey(provider domain.SourceType, nativeID string) (string, bool) {
	nativeID = strings.TrimSpace(nativeID)
	if provider == "" || nativeID == "" {
		return "", false
	}
	return string(provider) + ":" + nativeID, true
}

// TitleKey formats the normalized-title identity key for a raw title.
func TitleKey(title string) string {
	return titleKeyPrefix + NormalizeTitle(title)
}

// IsTitleKey reports whether key was produced by TitleKey.
func IsTitleKey(key string) bool {
	return strings.HasPrefix(key, titleKeyPrefix)
}

// NormalizeTitle lowercases a title, drops every rune that is not a letter,
// digit or whitespace, and collapses whitespace runs to a single space.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
