// Package source loads (key, vector) records from upstream stores: JSON Lines
// files and SQL tables holding pgvector-style embeddings.
package source

import (
	"errors"
	"fmt"
)

// Record is one embedding read from a source.
type Record struct {
	ID      string    `json:"id"`
	Content string    `json:"content,omitempty"`
	Vector  []float32 `json:"embedding"`
}

// ErrEmptyVector is returned for a record without embedding components.
var ErrEmptyVector = errors.New("source: empty vector")

// ErrMixedDimensions is returned by Dimension when records disagree on length.
type ErrMixedDimensions struct {
	ID       string
	Expected int
	Actual   int
}

func (e *ErrMixedDimensions) Error() string {
	return fmt.Sprintf("source: record %q has dimension %d, expected %d", e.ID, e.Actual, e.Expected)
}

// Dimension returns the common vector length of recs, or 0 for no records.
func Dimension(recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	dim := len(recs[0].Vector)
	for _, r := range recs[1:] {
		if len(r.Vector) != dim {
			return 0, &ErrMixedDimensions{ID: r.ID, Expected: dim, Actual: len(r.Vector)}
		}
	}
	return dim, nil
}
