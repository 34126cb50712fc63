// Package flat provides exact nearest-neighbor search over a vector store.
//
// It scores every live vector and serves as the ground truth the
// approximate indexes are measured against.
package flat

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/vectorstore"
)

// Options contains configuration options for the flat index.
type Options struct {
	Metric distance.Metric

	// Workers bounds SearchBatch concurrency. 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Metric: distance.MetricL2,
}

// Index performs brute-force search over a live store. It holds no state
// of its own, so it always reflects the store's current contents.
type Index[K model.Key] struct {
	store    *vectorstore.Store[K]
	distFunc distance.Func
	opts     Options
}

// New creates a flat index over store.
func New[K model.Key](store *vectorstore.Store[K], optFns ...func(o *Options)) (*Index[K], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	return &Index[K]{store: store, distFunc: distFunc, opts: opts}, nil
}

// Search returns the exact topN neighbors of query, ascending by distance
// and then key.
func (f *Index[K]) Search(ctx context.Context, query []float32, topN int) ([]model.Result[K], error) {
	if err := model.CheckDimension(query, f.store.Dimension()); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, model.ErrInvalidK
	}

	results := make([]model.Result[K], 0, f.store.Len())
	i := 0
	for key, vec := range f.store.All() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i++
		results = append(results, model.Result[K]{Key: key, Distance: f.distFunc(query, vec)})
	}

	model.SortResults(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// SearchBatch runs Search for every query with bounded concurrency.
// out[i] answers queries[i].
func (f *Index[K]) SearchBatch(ctx context.Context, queries [][]float32, topN int) ([][]model.Result[K], error) {
	out := make([][]model.Result[K], len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Workers)

	for i, q := range queries {
		g.Go(func() error {
			res, err := f.Search(gctx, q, topN)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
