// Package testutil provides testing utilities for annidx.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.ClusteredVectors(1000, 32, 10, 0.05)
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.ExactTopK(query, keys, vecs, 10, distance.SquaredL2)
//
// # Recall Verification
//
//	recall := testutil.Recall(truth, approx)
package testutil
