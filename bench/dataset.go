package bench

import (
	"fmt"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/testutil"
	"github.com/hupe1980/annidx/vectorstore"
)

// Dataset is a collection plus the queries run against it.
// Keys[i] names Vectors[i].
type Dataset[K model.Key] struct {
	Name      string
	Dimension int
	Keys      []K
	Vectors   [][]float32
	Queries   [][]float32
}

// Validate checks shapes.
func (ds *Dataset[K]) Validate() error {
	if ds.Dimension <= 0 {
		return &model.ErrInvalidDimension{Dimension: ds.Dimension}
	}
	if len(ds.Vectors) == 0 {
		return model.ErrEmptyCollection
	}
	if len(ds.Keys) != len(ds.Vectors) {
		return fmt.Errorf("dataset %q: %d keys for %d vectors", ds.Name, len(ds.Keys), len(ds.Vectors))
	}
	for i, q := range ds.Queries {
		if err := model.CheckDimension(q, ds.Dimension); err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
	}
	return nil
}

// Store loads the dataset into a new vector store.
func (ds *Dataset[K]) Store(optFns ...func(o *vectorstore.Options)) (*vectorstore.Store[K], error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	fns := append([]func(o *vectorstore.Options){vectorstore.WithInitialCapacity(len(ds.Vectors))}, optFns...)
	store, err := vectorstore.New[K](ds.Dimension, fns...)
	if err != nil {
		return nil, err
	}

	for i, v := range ds.Vectors {
		if err := store.Put(ds.Keys[i], v); err != nil {
			return nil, fmt.Errorf("vector %v: %w", ds.Keys[i], err)
		}
	}
	return store, nil
}

// Synthetic generates n clustered vectors. Each of the numQueries
// queries is a randomly chosen vector with a little Gaussian noise.
func Synthetic(n, dim, clusters, numQueries int, seed int64) *Dataset[int] {
	rng := testutil.NewRNG(seed)
	vectors := rng.ClusteredVectors(n, dim, max(1, clusters), 0.1)

	queries := rng.GaussianVectors(numQueries, dim)
	for _, q := range queries {
		distance.ScaleInPlace(q, 0.02)
		distance.AddScaled(q, 1, vectors[rng.Intn(n)])
	}

	return &Dataset[int]{
		Name:      fmt.Sprintf("synthetic-%dx%d", n, dim),
		Dimension: dim,
		Keys:      testutil.Sequence(n),
		Vectors:   vectors,
		Queries:   queries,
	}
}
