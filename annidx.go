package annidx

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/annidx/blobstore"
	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/flat"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/ivf"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/snapshot"
	"github.com/hupe1980/annidx/vectorstore"
)

// Result is a (key, distance) pair returned by searches.
type Result[K model.Key] = model.Result[K]

// Collection is a vector store with a clustering index and a graph index
// over it.
//
// Thread safety: reads and searches may run concurrently. Writes (Put,
// Remove, Build, RebuildGraph) are expected from a single writer.
type Collection[K model.Key] struct {
	mu sync.RWMutex // guards graph and stale

	dim      int
	opts     options
	distFunc distance.Func
	logger   *Logger
	metrics  MetricsCollector

	store    *vectorstore.Store[K]
	clusters *ivf.Index[K]
	graph    *hnsw.Graph[K]
	exact    *flat.Index[K]

	// stale holds graph keys whose store vector was removed or replaced
	// after insertion. Graph searches skip them in the candidate list and
	// score the live ones exactly against the store.
	stale map[K]struct{}
}

// New creates an empty collection for vectors of the given dimension.
func New[K model.Key](dim int, optFns ...Option) (*Collection[K], error) {
	return newCollection[K](dim, applyOptions(optFns))
}

func newCollection[K model.Key](dim int, o options) (*Collection[K], error) {
	distFunc, err := distance.Provider(o.metric)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.New[K](dim, vectorstore.WithResourceController(o.resources))
	if err != nil {
		return nil, err
	}

	c := &Collection[K]{
		dim:      dim,
		opts:     o,
		distFunc: distFunc,
		logger:   o.logger.WithDimension(dim),
		metrics:  o.metricsCollector,
		stale:    make(map[K]struct{}),
	}

	if err := c.bind(store); err != nil {
		return nil, err
	}
	if c.graph, err = hnsw.New[K](dim, c.graphOptions()...); err != nil {
		return nil, err
	}
	return c, nil
}

// bind attaches store and creates the store-bound indexes.
func (c *Collection[K]) bind(store *vectorstore.Store[K]) error {
	clusters, err := ivf.New[K](c.clusterOptions()...)
	if err != nil {
		return err
	}
	exact, err := flat.New(store, func(o *flat.Options) { o.Metric = c.opts.metric })
	if err != nil {
		return err
	}
	c.store, c.clusters, c.exact = store, clusters, exact
	return nil
}

func (c *Collection[K]) clusterOptions() []func(*ivf.Options) {
	return append([]func(*ivf.Options){func(o *ivf.Options) {
		o.Metric = c.opts.metric
		o.Seed = c.opts.seed
		o.Logger = c.logger.WithIndex(IndexClusters).Logger
	}}, c.opts.clusterOptions...)
}

func (c *Collection[K]) graphOptions() []func(*hnsw.Options) {
	return append([]func(*hnsw.Options){func(o *hnsw.Options) {
		o.Metric = c.opts.metric
		o.Seed = c.opts.seed
		o.Resources = c.opts.resources
		o.Logger = c.logger.WithIndex(IndexGraph).Logger
	}}, c.opts.graphOptions...)
}

// Dimension returns the fixed vector dimension.
func (c *Collection[K]) Dimension() int { return c.dim }

// Metric returns the distance metric shared by all indexes.
func (c *Collection[K]) Metric() distance.Metric { return c.opts.metric }

// Len returns the number of live vectors.
func (c *Collection[K]) Len() int { return c.store.Len() }

// Store returns the underlying vector store.
func (c *Collection[K]) Store() *vectorstore.Store[K] { return c.store }

// Clusters returns the clustering index.
func (c *Collection[K]) Clusters() *ivf.Index[K] { return c.clusters }

// Graph returns the current graph index.
func (c *Collection[K]) Graph() *hnsw.Graph[K] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph
}

// Put stores vec under key, replacing any previous vector. With auto graph
// enabled a new key is also inserted into the graph; a replaced key keeps
// its old graph position until RebuildGraph.
//
// A new key enters the graph before the store, so a failed graph insert
// leaves the collection unchanged. If the store write fails afterwards the
// node stays in the graph and searches skip it like a removed key.
//
// A replacement makes a built clustering index stale. Keys added after
// Build are not searchable through it until the next Build.
func (c *Collection[K]) Put(ctx context.Context, key K, vec []float32) error {
	start := time.Now()

	replaced := c.store.Contains(key)
	err := c.put(ctx, key, vec)

	c.metrics.RecordPut(time.Since(start), err)
	c.logger.LogPut(ctx, key, replaced, err)
	return err
}

func (c *Collection[K]) put(ctx context.Context, key K, vec []float32) error {
	if err := model.CheckDimension(vec, c.dim); err != nil {
		return err
	}

	g := c.Graph()
	fresh := c.opts.autoGraph && !g.Contains(key)
	if fresh {
		if err := c.insertGraph(ctx, g, key, vec); err != nil {
			return err
		}
	}

	if err := c.store.Put(key, vec); err != nil {
		if fresh {
			c.markStale(key)
		}
		return err
	}

	if !fresh {
		c.markStale(key)
	}
	return nil
}

func (c *Collection[K]) insertGraph(ctx context.Context, g *hnsw.Graph[K], key K, vec []float32) error {
	start := time.Now()
	err := g.Insert(key, vec)
	c.metrics.RecordInsert(time.Since(start), err)
	c.logger.LogInsert(ctx, key, err)
	return err
}

// Get returns the vector stored under key.
func (c *Collection[K]) Get(key K) ([]float32, error) {
	return c.store.Get(key)
}

// Remove deletes key. The graph keeps the node but searches skip it; the
// clustering index reports ErrStaleIndex until rebuilt.
func (c *Collection[K]) Remove(ctx context.Context, key K) error {
	start := time.Now()

	err := c.store.Remove(key)
	if err == nil {
		c.markStale(key)
	}

	c.metrics.RecordRemove(time.Since(start), err)
	c.logger.LogRemove(ctx, key, err == nil && c.clusters.Stale(), err)
	return err
}

// markStale records key as outdated in the graph if the graph holds it.
func (c *Collection[K]) markStale(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.graph.Contains(key) {
		return false
	}
	c.stale[key] = struct{}{}
	return true
}

// StaleGraphKeys returns the number of graph nodes that no longer match
// the store. RebuildGraph resets it to zero.
func (c *Collection[K]) StaleGraphKeys() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stale)
}

// Build clusters the current contents into k partitions. k <= 0 selects
// ivf.DefaultK; maxIterations <= 0 selects the index default. Builds wait
// for a slot on the resource controller.
func (c *Collection[K]) Build(ctx context.Context, k, maxIterations int) error {
	if err := c.opts.resources.AcquireBuild(ctx); err != nil {
		return err
	}
	defer c.opts.resources.ReleaseBuild()

	n := c.store.Len()
	start := time.Now()
	err := c.clusters.Build(ctx, c.store, ivf.BuildOptions{K: k, MaxIterations: maxIterations})
	elapsed := time.Since(start)

	c.metrics.RecordBuild(n, elapsed, err)
	c.logger.LogBuild(ctx, n, c.clusters.K(), c.clusters.Iterations(), c.clusters.Converged(), elapsed, err)
	return err
}

// RebuildGraph replaces the graph with one built from the current store
// contents in ascending key order.
func (c *Collection[K]) RebuildGraph(ctx context.Context) error {
	if err := c.opts.resources.AcquireBuild(ctx); err != nil {
		return err
	}
	defer c.opts.resources.ReleaseBuild()

	g, err := hnsw.New[K](c.dim, c.graphOptions()...)
	if err != nil {
		return err
	}
	for key, vec := range c.store.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.Insert(key, vec); err != nil {
			return fmt.Errorf("rebuild graph: %w", err)
		}
	}

	c.mu.Lock()
	c.graph = g
	c.stale = make(map[K]struct{})
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "graph rebuilt", "nodes", g.Len(), "max_level", g.MaxLevel())
	return nil
}

// SearchClusters searches the clustering index, scanning the probes
// nearest partitions. probes <= 0 selects the index default.
func (c *Collection[K]) SearchClusters(ctx context.Context, query []float32, topN, probes int) ([]Result[K], error) {
	start := time.Now()
	res, err := c.clusters.Search(ctx, query, topN, probes)
	c.record(ctx, IndexClusters, topN, len(res), time.Since(start), err)
	return res, err
}

// SearchGraph searches the graph index with candidate list width ef.
// ef <= 0 selects the graph default.
func (c *Collection[K]) SearchGraph(ctx context.Context, query []float32, topN, ef int) ([]Result[K], error) {
	start := time.Now()
	res, err := c.searchGraph(ctx, query, topN, ef)
	c.record(ctx, IndexGraph, topN, len(res), time.Since(start), err)
	return res, err
}

func (c *Collection[K]) searchGraph(ctx context.Context, query []float32, topN, ef int) ([]Result[K], error) {
	c.mu.RLock()
	g := c.graph
	stale := make([]K, 0, len(c.stale))
	for key := range c.stale {
		stale = append(stale, key)
	}
	c.mu.RUnlock()

	if len(stale) == 0 || topN <= 0 {
		return g.Search(ctx, query, topN, ef)
	}

	want := topN + len(stale)
	if ef <= 0 {
		ef = g.Options().EFSearch
	}
	candidates, err := g.Search(ctx, query, want, max(ef, want))
	if err != nil {
		return nil, err
	}

	skip := make(map[K]struct{}, len(stale))
	for _, key := range stale {
		skip[key] = struct{}{}
	}

	results := make([]Result[K], 0, len(candidates)+len(stale))
	for _, r := range candidates {
		if _, ok := skip[r.Key]; !ok {
			results = append(results, r)
		}
	}
	for _, key := range stale {
		vec, err := c.store.Get(key)
		if err != nil {
			continue // removed
		}
		results = append(results, Result[K]{Key: key, Distance: c.distFunc(query, vec)})
	}

	model.SortResults(results)
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// SearchExact scores every live vector.
func (c *Collection[K]) SearchExact(ctx context.Context, query []float32, topN int) ([]Result[K], error) {
	start := time.Now()
	res, err := c.exact.Search(ctx, query, topN)
	c.record(ctx, IndexFlat, topN, len(res), time.Since(start), err)
	return res, err
}

// Search uses the clustering index when it is built and current, the
// graph when it has nodes, and an exact scan otherwise.
func (c *Collection[K]) Search(ctx context.Context, query []float32, topN int) ([]Result[K], error) {
	switch {
	case c.clusters.State() == ivf.StateReady && !c.clusters.Stale():
		return c.SearchClusters(ctx, query, topN, 0)
	case c.Graph().Len() > 0:
		return c.SearchGraph(ctx, query, topN, 0)
	default:
		return c.SearchExact(ctx, query, topN)
	}
}

func (c *Collection[K]) record(ctx context.Context, index string, topN, found int, elapsed time.Duration, err error) {
	c.metrics.RecordSearch(index, topN, elapsed, err)
	c.logger.LogSearch(ctx, index, topN, found, err)
}

// Save writes a snapshot of the store and both indexes to blobs. A stale
// or unbuilt clustering index is not saved. sopts.Resources defaults to
// the collection's resource controller.
func (c *Collection[K]) Save(ctx context.Context, blobs blobstore.Store, name string, sopts snapshot.Options) error {
	if sopts.Resources == nil {
		sopts.Resources = c.opts.resources
	}

	snap, err := snapshot.Capture(c.opts.metric, c.store, c.clusters, c.Graph())
	if err == nil {
		err = snapshot.Save(ctx, blobs, name, snap, sopts)
	}

	c.logger.LogSnapshot(ctx, "save", name, err)
	return err
}

// Load restores a collection saved with Save. The dimension and metric
// come from the snapshot; other options apply as for New.
func Load[K model.Key](ctx context.Context, blobs blobstore.Store, name string, optFns ...Option) (*Collection[K], error) {
	o := applyOptions(optFns)

	c, err := load[K](ctx, blobs, name, o)
	o.logger.LogSnapshot(ctx, "load", name, err)
	return c, err
}

func load[K model.Key](ctx context.Context, blobs blobstore.Store, name string, o options) (*Collection[K], error) {
	snap, err := snapshot.Load[K](ctx, blobs, name, o.resources)
	if err != nil {
		return nil, err
	}
	o.metric = snap.Metric

	c, err := newCollection[K](snap.Dimension, o)
	if err != nil {
		return nil, err
	}

	store, err := snap.RestoreStore(vectorstore.WithResourceController(o.resources))
	if err != nil {
		return nil, err
	}
	if err := c.bind(store); err != nil {
		return nil, err
	}

	clusters, err := snap.RestoreClusters(store, c.clusterOptions()...)
	if err != nil {
		return nil, err
	}
	c.clusters = clusters

	graph, err := snap.RestoreGraph(c.graphOptions()...)
	if err != nil {
		return nil, err
	}
	if graph != nil {
		c.graph = graph
		c.stale = staleKeys(graph, store)
	}

	return c, nil
}

// staleKeys returns the graph nodes whose vector is missing from or
// differs in store.
func staleKeys[K model.Key](g *hnsw.Graph[K], store *vectorstore.Store[K]) map[K]struct{} {
	stale := make(map[K]struct{})
	for _, key := range g.Keys() {
		want, err := store.Get(key)
		if err != nil {
			stale[key] = struct{}{}
			continue
		}
		if got, _ := g.Vector(key); !slices.Equal(want, got) {
			stale[key] = struct{}{}
		}
	}
	return stale
}
