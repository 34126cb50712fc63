// Package model defines core types used throughout annidx.
//
// # Identity Types
//
//   - Key: caller-supplied, ordered, stable identifier of a vector
//   - RowID: dense, collection-local ordinal assigned on first insert
//
// # Data Types
//
//   - Result: a (key, distance) pair returned by every search
//
// # Errors
//
// Every error kind the indexes surface is defined here so that the
// distance, vectorstore, ivf and hnsw packages agree on them. Use
// errors.Is for the sentinels and errors.As for the struct errors.
package model
