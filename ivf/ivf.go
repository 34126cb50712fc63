package ivf

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/internal/kmeans"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/vectorstore"
)

const (
	// DefaultProbes is the number of clusters scanned when Search is
	// called with probes == 0.
	DefaultProbes = 1

	// DefaultMaxIterations bounds Lloyd's algorithm.
	DefaultMaxIterations = 25
)

// State is the lifecycle state of an Index.
type State int

const (
	StateEmpty State = iota
	StateBuilding
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options represents the options for configuring the clustering index.
type Options struct {
	Metric distance.Metric

	// Seed drives the random choice of initial centroids.
	Seed uint64

	// Probes is the default number of clusters scanned per query.
	Probes int

	// MaxIterations is the default iteration bound for Build.
	MaxIterations int

	// Workers > 1 parallelizes the k-means assignment step.
	Workers int

	Logger *slog.Logger
}

// DefaultOptions contains the default options for the clustering index.
var DefaultOptions = Options{
	Metric:        distance.MetricL2,
	Seed:          1,
	Probes:        DefaultProbes,
	MaxIterations: DefaultMaxIterations,
	Workers:       1,
}

// BuildOptions controls a single Build.
type BuildOptions struct {
	// K is the number of clusters. K <= 0 selects DefaultK(n); K > n is
	// clamped to n.
	K int

	// MaxIterations overrides Options.MaxIterations when > 0.
	MaxIterations int

	// InitialCentroids replaces the seeded random choice. When set, K
	// must be 0 or equal to len(InitialCentroids).
	InitialCentroids [][]float32
}

// DefaultK returns the cluster count used when none is given:
// round(sqrt(n)), at least 1.
func DefaultK(n int) int {
	return max(1, int(math.Round(math.Sqrt(float64(n)))))
}

// Index is an IVFFlat clustering index over a vectorstore.Store.
//
// Thread safety: Search and the accessors may run concurrently with each
// other and with Build. Builds are expected to be issued by one writer.
type Index[K model.Key] struct {
	mu sync.RWMutex

	opts     Options
	distFunc distance.Func
	logger   *slog.Logger

	state State
	store *vectorstore.Store[K]

	centroids [][]float32
	clusters  []*roaring.Bitmap
	assigned  map[model.RowID]int
	removals  uint64 // store.Removals() observed at build time

	iterations int
	converged  bool
	buildTime  time.Duration
}

// New creates a new, empty clustering index.
func New[K model.Key](optFns ...func(o *Options)) (*Index[K], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	if opts.Probes <= 0 {
		opts.Probes = DefaultProbes
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Index[K]{
		opts:     opts,
		distFunc: distFunc,
		logger:   logger,
	}, nil
}

// Build clusters every vector of store.
//
// On success the index is Ready and bound to store. On failure, including
// cancellation of ctx, the index stays in StateBuilding and the previous
// clustering is discarded.
func (idx *Index[K]) Build(ctx context.Context, store *vectorstore.Store[K], bopts BuildOptions) error {
	start := time.Now()

	idx.mu.Lock()
	idx.state = StateBuilding
	idx.store = nil
	idx.centroids = nil
	idx.clusters = nil
	idx.assigned = nil
	idx.mu.Unlock()

	if store == nil {
		return model.ErrEmptyCollection
	}

	removals := store.Removals()
	entries := store.Entries()
	n := len(entries)
	if n == 0 {
		return model.ErrEmptyCollection
	}

	initial, err := idx.initialCentroids(entries, store.Dimension(), bopts)
	if err != nil {
		return err
	}

	maxIter := bopts.MaxIterations
	if maxIter <= 0 {
		maxIter = idx.opts.MaxIterations
	}

	vectors := make([][]float32, n)
	for i, e := range entries {
		vectors[i] = e.Vector
	}

	idx.logger.Debug("ivf build started", "vectors", n, "k", len(initial), "max_iterations", maxIter)

	res, err := kmeans.Train(ctx, vectors, initial, kmeans.Options{
		Metric:        idx.opts.Metric,
		MaxIterations: maxIter,
		Workers:       idx.opts.Workers,
		Logger:        idx.logger,
	})
	if err != nil {
		idx.logger.Debug("ivf build aborted", "error", err)
		return err
	}

	k := len(res.Centroids)
	clusters := make([]*roaring.Bitmap, k)
	for i := range clusters {
		clusters[i] = roaring.New()
	}
	assigned := make(map[model.RowID]int, n)
	for i, c := range res.Assignments {
		clusters[c].Add(uint32(entries[i].Row))
		assigned[entries[i].Row] = c
	}
	for _, bm := range clusters {
		bm.RunOptimize()
	}

	idx.mu.Lock()
	idx.store = store
	idx.centroids = res.Centroids
	idx.clusters = clusters
	idx.assigned = assigned
	idx.removals = removals
	idx.iterations = res.Iterations
	idx.converged = res.Converged
	idx.buildTime = time.Since(start)
	idx.state = StateReady
	idx.mu.Unlock()

	idx.logger.Debug("ivf build finished",
		"vectors", n,
		"k", k,
		"iterations", res.Iterations,
		"converged", res.Converged,
		"duration", idx.buildTime,
	)

	return nil
}

// initialCentroids validates caller-supplied centroids or draws a seeded
// sample without replacement. entries are in ascending key order, so the
// same seed over the same data yields the same centroids.
func (idx *Index[K]) initialCentroids(entries []vectorstore.Entry[K], dim int, bopts BuildOptions) ([][]float32, error) {
	n := len(entries)

	if len(bopts.InitialCentroids) > 0 {
		if bopts.K > 0 && bopts.K != len(bopts.InitialCentroids) {
			return nil, fmt.Errorf("%w: %d initial centroids for k=%d", model.ErrInvalidK, len(bopts.InitialCentroids), bopts.K)
		}
		out := make([][]float32, len(bopts.InitialCentroids))
		for i, c := range bopts.InitialCentroids {
			if err := model.CheckDimension(c, dim); err != nil {
				return nil, fmt.Errorf("initial centroid %d: %w", i, err)
			}
			out[i] = slices.Clone(c)
		}
		return out, nil
	}

	k := bopts.K
	if k <= 0 {
		k = DefaultK(n)
	}
	k = min(k, n)

	rng := rand.New(rand.NewPCG(idx.opts.Seed, idx.opts.Seed^0x9e3779b97f4a7c15))
	picks := rng.Perm(n)[:k]
	slices.Sort(picks)

	out := make([][]float32, k)
	for i, p := range picks {
		out[i] = slices.Clone(entries[p].Vector)
	}
	return out, nil
}

// Search returns the topN nearest vectors among the probes clusters
// whose centroids are closest to query, ascending by distance and then
// key. probes == 0 uses the configured default; other values are clamped
// to [1, K].
func (idx *Index[K]) Search(ctx context.Context, query []float32, topN, probes int) ([]model.Result[K], error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.state != StateReady {
		return nil, model.ErrIndexNotBuilt
	}
	if err := model.CheckDimension(query, idx.store.Dimension()); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, model.ErrInvalidK
	}
	if idx.store.Removals() != idx.removals {
		return nil, model.ErrStaleIndex
	}

	if probes == 0 {
		probes = idx.opts.Probes
	}
	probes = max(1, min(probes, len(idx.centroids)))

	var results []model.Result[K]
	for _, c := range kmeans.Closest(query, idx.centroids, probes, idx.distFunc) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		it := idx.clusters[c].Iterator()
		for it.HasNext() {
			row := model.RowID(it.Next())
			vec, _ := idx.store.VectorAt(row)
			key, _ := idx.store.KeyOf(row)
			results = append(results, model.Result[K]{Key: key, Distance: idx.distFunc(query, vec)})
		}
	}

	model.SortResults(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// State returns the lifecycle state.
func (idx *Index[K]) State() State {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.state
}

// Metric returns the distance metric.
func (idx *Index[K]) Metric() distance.Metric { return idx.opts.Metric }

// Options returns the options the index was created with.
func (idx *Index[K]) Options() Options { return idx.opts }

// K returns the number of clusters, or 0 when not built.
func (idx *Index[K]) K() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.centroids)
}

// Len returns the number of vectors partitioned by the last build.
func (idx *Index[K]) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.assigned)
}

// Centroids returns a copy of the centroids.
func (idx *Index[K]) Centroids() [][]float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([][]float32, len(idx.centroids))
	for i, c := range idx.centroids {
		out[i] = slices.Clone(c)
	}
	return out
}

// Clusters returns the member keys of every cluster, each in ascending
// key order. Clusters()[i] belongs to Centroids()[i].
func (idx *Index[K]) Clusters() [][]K {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([][]K, len(idx.clusters))
	for i, bm := range idx.clusters {
		keys := make([]K, 0, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			key, _ := idx.store.KeyOf(model.RowID(it.Next()))
			keys = append(keys, key)
		}
		slices.Sort(keys)
		out[i] = keys
	}
	return out
}

// ClusterOf returns the cluster key was assigned to by the last build.
func (idx *Index[K]) ClusterOf(key K) (int, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.store == nil {
		return 0, false
	}
	row, ok := idx.store.RowID(key)
	if !ok {
		return 0, false
	}
	c, ok := idx.assigned[row]
	return c, ok
}

// Iterations returns the number of Lloyd iterations of the last build.
func (idx *Index[K]) Iterations() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.iterations
}

// Converged reports whether the last build stopped because no
// assignment changed.
func (idx *Index[K]) Converged() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.converged
}

// BuildTime returns the wall time of the last successful build.
func (idx *Index[K]) BuildTime() time.Duration {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.buildTime
}

// Stale reports whether the bound store retired rows since the build.
func (idx *Index[K]) Stale() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.state == StateReady && idx.store.Removals() != idx.removals
}
