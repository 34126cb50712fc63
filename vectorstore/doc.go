// Package vectorstore provides the in-memory vector collection the
// indexes are built over.
//
// A Store maps caller keys to fixed-dimension vectors. Vectors are
// appended to a contiguous buffer and addressed by a dense RowID;
// replacing a key appends a new row and retires the old one, so a slice
// returned by Get never changes underneath the caller.
//
// Iteration via All is lazy, finite and restartable, and visits keys in
// ascending order.
package vectorstore
