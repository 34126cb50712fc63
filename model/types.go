package model

import (
	"cmp"
	"fmt"
	"slices"
)

// Key is the constraint for user-facing vector identifiers.
// Keys must be ordered so that results with equal distances have a
// deterministic order.
type Key interface {
	cmp.Ordered
}

// RowID is a dense, collection-local identifier for a stored vector.
// RowIDs are assigned in insertion order and never reused.
type RowID uint32

// Result is a single search hit.
type Result[K Key] struct {
	Key      K
	Distance float32
}

// String returns a string representation of the Result.
func (r Result[K]) String() string {
	return fmt.Sprintf("%v(%.6f)", r.Key, r.Distance)
}

// CompareResults orders results ascending by distance, ties broken by key.
func CompareResults[K Key](a, b Result[K]) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// SortResults sorts results in place ascending by distance, ties by key.
func SortResults[K Key](results []Result[K]) {
	slices.SortFunc(results, CompareResults[K])
}

// Keys returns the keys of results in order.
func Keys[K Key](results []Result[K]) []K {
	out := make([]K, len(results))
	for i, r := range results {
		out[i] = r.Key
	}
	return out
}
