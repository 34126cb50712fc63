package model

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when looking up or removing an absent key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrDuplicateKey is returned when inserting a key that already exists
	// into an index that does not support replacement.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrIndexNotBuilt is returned when searching a clustering index that
	// has not completed a build.
	ErrIndexNotBuilt = errors.New("index not built")

	// ErrEmptyCollection is returned when building over zero vectors.
	ErrEmptyCollection = errors.New("empty collection")

	// ErrInvalidK is returned when a result count or cluster count is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrStaleIndex is returned when vectors referenced by an index were
	// removed or replaced after the index was built. Rebuild required.
	ErrStaleIndex = errors.New("index is stale: rebuild required after deletion")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// CheckDimension returns *ErrDimensionMismatch if len(vec) != dim.
func CheckDimension(vec []float32, dim int) error {
	if len(vec) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(vec)}
	}
	return nil
}
