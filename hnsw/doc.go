// Package hnsw implements a Hierarchical Navigable Small World graph.
//
// Every inserted vector becomes a node with a random top layer drawn as
// floor(-ln(U) * mL). Upper layers are sparse and serve as an express
// lane: a search descends greedily from the entry point to layer 1 and
// then runs a bounded best-first search of width efSearch on layer 0.
//
// # Degree Bound
//
// A node keeps at most M neighbors on every layer. When linking a new
// node pushes a neighbor over M, the neighbor's list is pruned:
//
//   - Heuristic (default): neighbors are kept nearest first, skipping a
//     candidate that is closer to an already kept neighbor than to the
//     node itself; skipped candidates refill the list up to M. This keeps
//     bridges between clusters alive.
//   - Simple: the farthest neighbor is dropped.
//
// In both modes equal distances are resolved by dropping the
// earliest-inserted neighbor first.
//
// # Concurrency
//
// A Graph is safe for concurrent use: searches share a read lock and
// inserts take the write lock, since pruning rewrites neighbor lists.
package hnsw
