package ivf

import (
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/vectorstore"
)

// Partition is the portable form of a built index. Members are recorded
// by key so a partition can be re-attached to a store whose row layout
// differs, e.g. after a snapshot round trip.
type Partition[K model.Key] struct {
	Centroids  [][]float32
	Members    [][]K
	Iterations int
	Converged  bool
}

// Partition exports the current clustering.
func (idx *Index[K]) Partition() (*Partition[K], error) {
	if idx.State() != StateReady {
		return nil, model.ErrIndexNotBuilt
	}

	idx.mu.RLock()
	iterations, converged := idx.iterations, idx.converged
	idx.mu.RUnlock()

	return &Partition[K]{
		Centroids:  idx.Centroids(),
		Members:    idx.Clusters(),
		Iterations: iterations,
		Converged:  converged,
	}, nil
}

// Restore binds p to store and marks the index Ready without running
// k-means. Every member key must be present in store.
func (idx *Index[K]) Restore(store *vectorstore.Store[K], p *Partition[K]) error {
	if len(p.Centroids) == 0 {
		return model.ErrInvalidK
	}
	if len(p.Members) != len(p.Centroids) {
		return fmt.Errorf("partition has %d member lists for %d centroids", len(p.Members), len(p.Centroids))
	}

	dim := store.Dimension()
	centroids := make([][]float32, len(p.Centroids))
	for i, c := range p.Centroids {
		if err := model.CheckDimension(c, dim); err != nil {
			return fmt.Errorf("centroid %d: %w", i, err)
		}
		centroids[i] = slices.Clone(c)
	}

	removals := store.Removals()
	clusters := make([]*roaring.Bitmap, len(p.Members))
	assigned := make(map[model.RowID]int)
	for c, keys := range p.Members {
		clusters[c] = roaring.New()
		for _, key := range keys {
			row, ok := store.RowID(key)
			if !ok {
				return fmt.Errorf("cluster %d member %v: %w", c, key, model.ErrKeyNotFound)
			}
			clusters[c].Add(uint32(row))
			assigned[row] = c
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.store = store
	idx.centroids = centroids
	idx.clusters = clusters
	idx.assigned = assigned
	idx.removals = removals
	idx.iterations = p.Iterations
	idx.converged = p.Converged
	idx.state = StateReady

	return nil
}
