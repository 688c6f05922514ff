package util

import (
	"cmp"
	"slices"
)

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CountValues tallies how many keys map to each value.
func CountValues[K, V comparable](m map[K]V) map[V]int {
	counts := make(map[V]int)
	for _, v := range m {
		counts[v]++
	}
	return counts
}
