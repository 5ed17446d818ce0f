package workflows

import "sort"

// SortedMapKeys returns the keys of a map sorted in ascending order.
// Workflow code must not depend on map iteration order, so any loop over a
// map goes through this first.
func SortedMapKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}
