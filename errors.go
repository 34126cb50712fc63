package annidx

import (
	"errors"

	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/resource"
)

// Errors returned by Collection. They are the model package's values, so
// errors.Is works across package boundaries.
var (
	ErrKeyNotFound     = model.ErrKeyNotFound
	ErrDuplicateKey    = model.ErrDuplicateKey
	ErrIndexNotBuilt   = model.ErrIndexNotBuilt
	ErrEmptyCollection = model.ErrEmptyCollection
	ErrInvalidK        = model.ErrInvalidK
	ErrStaleIndex      = model.ErrStaleIndex

	// ErrMemoryLimitExceeded is returned when a Put or graph insert would
	// exceed the resource controller's memory limit.
	ErrMemoryLimitExceeded = resource.ErrMemoryLimitExceeded
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch = model.ErrDimensionMismatch

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension = model.ErrInvalidDimension

// IsDimensionMismatch reports whether err is (or wraps) a dimension mismatch.
func IsDimensionMismatch(err error) bool {
	var dm *ErrDimensionMismatch
	return errors.As(err, &dm)
}
