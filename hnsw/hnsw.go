package hnsw

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/internal/queue"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/resource"
)

const (
	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default degree bound.
	DefaultM = 16

	// DefaultEFConstruction is the default candidate list width during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default candidate list width during search.
	DefaultEFSearch = 64

	bytesPerFloat = 4
	bytesPerEdge  = 4
)

// Options represents the options for configuring HNSW.
type Options struct {
	// M is the maximum number of neighbors per node and layer. Values
	// below 2 are raised to 2.
	M int

	// EFConstruction is the width of the candidate list during insertion.
	EFConstruction int

	// EFSearch is the default width of the candidate list during search.
	EFSearch int

	// Heuristic selects neighbors for diversity instead of pure proximity.
	Heuristic bool

	Metric distance.Metric

	// Seed seeds the level generator unless Rand is set.
	Seed uint64

	// LevelMultiplier is mL in floor(-ln(U) * mL). Zero means 1/ln(M).
	LevelMultiplier float64

	// Rand overrides the level generator's random source.
	Rand rand.Source

	// Resources accounts vector and edge memory. Nil means unlimited.
	Resources *resource.Controller

	Logger *slog.Logger
}

// DefaultOptions contains the default options for HNSW.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
	Heuristic:      true,
	Metric:         distance.MetricL2,
	Seed:           1,
}

type node[K model.Key] struct {
	key     K
	vec     []float32
	friends [][]model.RowID // friends[l] for l in 0..top layer
	inbound []int32         // inbound[l] counts the nodes linking here on layer l
}

func (n *node[K]) level() int { return len(n.friends) - 1 }

// Graph is a Hierarchical Navigable Small World index.
type Graph[K model.Key] struct {
	mu sync.RWMutex

	dim      int
	opts     Options
	distFunc distance.Func
	ml       float64
	rng      *rand.Rand
	logger   *slog.Logger

	nodes    []*node[K]
	index    map[K]model.RowID
	entry    model.RowID
	maxLevel int // -1 while empty
}

// New creates a new, empty graph for vectors of the given dimension.
func New[K model.Key](dim int, optFns ...func(o *Options)) (*Graph[K], error) {
	if dim <= 0 {
		return nil, &model.ErrInvalidDimension{Dimension: dim}
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}

	ml := opts.LevelMultiplier
	if ml <= 0 {
		ml = 1 / math.Log(float64(opts.M))
	}

	src := opts.Rand
	if src == nil {
		src = rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Graph[K]{
		dim:      dim,
		opts:     opts,
		distFunc: distFunc,
		ml:       ml,
		rng:      rand.New(src),
		logger:   logger,
		index:    make(map[K]model.RowID),
		maxLevel: -1,
	}, nil
}

// randomLevel draws floor(-ln(U) * mL) with U uniform in (0, 1].
// Caller must hold g.mu.
func (g *Graph[K]) randomLevel() int {
	u := 1 - g.rng.Float64()
	return int(math.Floor(-math.Log(u) * g.ml))
}

// Insert adds key with a copy of vec using the configured M and
// efConstruction.
func (g *Graph[K]) Insert(key K, vec []float32) error {
	return g.InsertWith(key, vec, g.opts.M, g.opts.EFConstruction)
}

// InsertWith adds key with a copy of vec. m bounds both the neighbors
// chosen for the new node and the lists of the neighbors it links into;
// efc is the candidate list width. Non-positive values use the defaults.
func (g *Graph[K]) InsertWith(key K, vec []float32, m, efc int) error {
	if err := model.CheckDimension(vec, g.dim); err != nil {
		return err
	}
	if m <= 0 {
		m = g.opts.M
	}
	m = max(m, minimumM)
	if efc <= 0 {
		efc = g.opts.EFConstruction
	}
	efc = max(efc, m)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[key]; ok {
		return model.ErrDuplicateKey
	}

	level := g.randomLevel()
	if err := g.opts.Resources.AcquireMemory(int64(g.dim*bytesPerFloat + (level+1)*m*bytesPerEdge)); err != nil {
		return err
	}

	id := model.RowID(len(g.nodes))
	n := &node[K]{
		key:     key,
		vec:     slices.Clone(vec),
		friends: make([][]model.RowID, level+1),
		inbound: make([]int32, level+1),
	}
	g.nodes = append(g.nodes, n)
	g.index[key] = id

	if g.maxLevel < 0 {
		g.entry = id
		g.maxLevel = level
		return nil
	}

	ep := g.entry
	epDist := g.distFunc(n.vec, g.nodes[ep].vec)

	// Find single shortest path from the top layer down to level+1.
	for lc := g.maxLevel; lc > level; lc-- {
		ep, epDist = g.greedy(n.vec, ep, epDist, lc)
	}

	for lc := min(level, g.maxLevel); lc >= 0; lc-- {
		candidates := g.searchLayer(n.vec, ep, epDist, efc, lc)

		selected := g.selectNeighbors(candidates, m)
		friends := make([]model.RowID, len(selected))
		for i, s := range selected {
			friends[i] = s.Node
		}
		n.friends[lc] = friends

		for _, f := range friends {
			g.nodes[f].inbound[lc]++
			g.link(f, id, lc, m)
		}

		ep, epDist = candidates[0].Node, candidates[0].Distance
	}

	if level > g.maxLevel {
		g.logger.Debug("hnsw entry point changed", "key", key, "level", level, "previous_level", g.maxLevel)
		g.entry = id
		g.maxLevel = level
	}

	return nil
}

// greedy walks to the neighbor closest to q until no neighbor improves.
func (g *Graph[K]) greedy(q []float32, ep model.RowID, epDist float32, level int) (model.RowID, float32) {
	for changed := true; changed; {
		changed = false
		for _, f := range g.nodes[ep].friends[level] {
			if d := g.distFunc(q, g.nodes[f].vec); d < epDist {
				ep, epDist = f, d
				changed = true
			}
		}
	}
	return ep, epDist
}

// searchLayer is a best-first search of width ef on one layer. The
// result is ordered ascending by distance, ties by key.
func (g *Graph[K]) searchLayer(q []float32, ep model.RowID, epDist float32, ef, level int) []queue.PriorityQueueItem {
	visited := bitset.New(uint(len(g.nodes)))
	visited.Set(uint(ep))

	candidates := queue.NewMin(ef)
	results := queue.NewMax(ef + 1)

	start := queue.PriorityQueueItem{Node: ep, Distance: epDist}
	candidates.PushItem(start)
	results.PushItem(start)

	for candidates.Len() > 0 {
		c, _ := candidates.PopItem()
		worst, _ := results.TopItem()
		if results.Len() >= ef && c.Distance > worst.Distance {
			break
		}

		for _, f := range g.nodes[c.Node].friends[level] {
			if visited.Test(uint(f)) {
				continue
			}
			visited.Set(uint(f))

			d := g.distFunc(q, g.nodes[f].vec)
			worst, _ = results.TopItem()
			if results.Len() < ef || d < worst.Distance {
				item := queue.PriorityQueueItem{Node: f, Distance: d}
				candidates.PushItem(item)
				results.PushItem(item)
				if results.Len() > ef {
					results.PopItem()
				}
			}
		}
	}

	out := slices.Clone(results.Items())
	slices.SortFunc(out, func(a, b queue.PriorityQueueItem) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(g.nodes[a.Node].key, g.nodes[b.Node].key)
	})
	return out
}

// selectNeighbors picks at most m of the ordered candidates.
func (g *Graph[K]) selectNeighbors(candidates []queue.PriorityQueueItem, m int) []queue.PriorityQueueItem {
	if len(candidates) <= m {
		return candidates
	}
	if !g.opts.Heuristic {
		return candidates[:m]
	}

	kept := make([]queue.PriorityQueueItem, 0, m)
	var skipped []queue.PriorityQueueItem

	for _, c := range candidates {
		if len(kept) >= m {
			break
		}

		good := true
		for _, k := range kept {
			if g.distFunc(g.nodes[k.Node].vec, g.nodes[c.Node].vec) < c.Distance {
				good = false
				break
			}
		}

		if good {
			kept = append(kept, c)
		} else {
			skipped = append(skipped, c)
		}
	}

	for _, c := range skipped {
		if len(kept) >= m {
			break
		}
		kept = append(kept, c)
	}

	return kept
}

// link adds the edge from -> to on level and prunes from's list back to m.
//
// Pruning drops the farthest neighbors, ties going to the earliest
// inserted, unless that neighbor would lose its last inbound edge on the
// layer and a kept neighbor that is still linked from elsewhere can go
// instead. With Heuristic set the diversity selection picks the
// candidates to keep and the same exchange applies.
func (g *Graph[K]) link(from, to model.RowID, level, m int) {
	n := g.nodes[from]
	n.friends[level] = append(n.friends[level], to)
	g.nodes[to].inbound[level]++
	if len(n.friends[level]) <= m {
		return
	}

	candidates := make([]queue.PriorityQueueItem, len(n.friends[level]))
	for i, f := range n.friends[level] {
		candidates[i] = queue.PriorityQueueItem{Node: f, Distance: g.distFunc(n.vec, g.nodes[f].vec)}
	}
	slices.SortFunc(candidates, nearestLatestFirst)

	kept := g.keepReachable(candidates, g.selectNeighbors(candidates, m), level)

	isKept := make(map[model.RowID]bool, len(kept))
	friends := make([]model.RowID, len(kept))
	for i, k := range kept {
		friends[i] = k.Node
		isKept[k.Node] = true
	}
	for _, c := range candidates {
		if !isKept[c.Node] {
			g.nodes[c.Node].inbound[level]--
		}
	}
	n.friends[level] = friends
}

// nearestLatestFirst orders by distance; among equals the latest insert
// comes first, so the earliest-inserted neighbor is the one that falls off.
func nearestLatestFirst(a, b queue.PriorityQueueItem) int {
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	return cmp.Compare(b.Node, a.Node)
}

// keepReachable exchanges dropped candidates that hold no other inbound
// edge on level for the farthest kept ones that do. The result has the
// size of kept and is ordered by nearestLatestFirst.
func (g *Graph[K]) keepReachable(candidates, kept []queue.PriorityQueueItem, level int) []queue.PriorityQueueItem {
	kept = slices.Clone(kept)
	slices.SortFunc(kept, nearestLatestFirst)

	isKept := make(map[model.RowID]bool, len(kept))
	for _, k := range kept {
		isKept[k.Node] = true
	}

	for _, c := range candidates {
		if isKept[c.Node] || !g.lastInbound(c.Node, level) {
			continue
		}
		for i := len(kept) - 1; i >= 0; i-- {
			if g.lastInbound(kept[i].Node, level) {
				continue
			}
			isKept[kept[i].Node] = false
			isKept[c.Node] = true
			kept[i] = c
			slices.SortFunc(kept, nearestLatestFirst)
			break
		}
	}
	return kept
}

// lastInbound reports whether dropping one inbound edge would leave id
// without any on level. The entry point is always reachable.
func (g *Graph[K]) lastInbound(id model.RowID, level int) bool {
	return id != g.entry && g.nodes[id].inbound[level] <= 1
}

// countInbound recomputes the inbound counters from the neighbor lists.
func (g *Graph[K]) countInbound() {
	for _, n := range g.nodes {
		n.inbound = make([]int32, len(n.friends))
	}
	for _, n := range g.nodes {
		for lc, fs := range n.friends {
			for _, f := range fs {
				g.nodes[f].inbound[lc]++
			}
		}
	}
}

// Search returns the topN nearest neighbors of query, ascending by
// distance and then key. efSearch <= 0 uses the configured default; the
// effective width is at least topN. A width covering every node scores
// all of them, so the result equals BruteSearch. An empty graph yields no
// results.
func (g *Graph[K]) Search(ctx context.Context, query []float32, topN, efSearch int) ([]model.Result[K], error) {
	if err := model.CheckDimension(query, g.dim); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, model.ErrInvalidK
	}
	if efSearch <= 0 {
		efSearch = g.opts.EFSearch
	}
	ef := max(efSearch, topN)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.maxLevel < 0 {
		return []model.Result[K]{}, nil
	}
	if ef >= len(g.nodes) {
		return g.scan(query, topN), nil
	}

	ep := g.entry
	epDist := g.distFunc(query, g.nodes[ep].vec)
	for lc := g.maxLevel; lc > 0; lc-- {
		ep, epDist = g.greedy(query, ep, epDist, lc)
	}

	found := g.searchLayer(query, ep, epDist, ef, 0)
	if len(found) > topN {
		found = found[:topN]
	}

	results := make([]model.Result[K], len(found))
	for i, f := range found {
		results[i] = model.Result[K]{Key: g.nodes[f.Node].key, Distance: f.Distance}
	}
	return results, nil
}

// BruteSearch scores every node exactly. It is the reference Search is
// measured against.
func (g *Graph[K]) BruteSearch(query []float32, topN int) ([]model.Result[K], error) {
	if err := model.CheckDimension(query, g.dim); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return nil, model.ErrInvalidK
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.scan(query, topN), nil
}

// scan scores every node. Caller must hold g.mu.
func (g *Graph[K]) scan(query []float32, topN int) []model.Result[K] {
	results := make([]model.Result[K], len(g.nodes))
	for i, n := range g.nodes {
		results[i] = model.Result[K]{Key: n.key, Distance: g.distFunc(query, n.vec)}
	}
	model.SortResults(results)

	if len(results) > topN {
		results = results[:topN]
	}
	return results
}

// Dimension returns the vector dimension.
func (g *Graph[K]) Dimension() int { return g.dim }

// Metric returns the distance metric.
func (g *Graph[K]) Metric() distance.Metric { return g.opts.Metric }

// Options returns the effective options.
func (g *Graph[K]) Options() Options { return g.opts }

// Len returns the number of nodes.
func (g *Graph[K]) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// MaxLevel returns the highest occupied layer, or -1 for an empty graph.
func (g *Graph[K]) MaxLevel() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxLevel
}

// EntryPoint returns the key of the entry point.
func (g *Graph[K]) EntryPoint() (K, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var zero K
	if g.maxLevel < 0 {
		return zero, false
	}
	return g.nodes[g.entry].key, true
}

// Contains reports whether key has been inserted.
func (g *Graph[K]) Contains(key K) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[key]
	return ok
}

// Level returns the top layer of key.
func (g *Graph[K]) Level(key K) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.index[key]
	if !ok {
		return 0, &ErrNodeNotFound[K]{Key: key}
	}
	return g.nodes[id].level(), nil
}

// Neighbors returns the keys key links to on layer.
func (g *Graph[K]) Neighbors(key K, layer int) ([]K, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.index[key]
	if !ok {
		return nil, &ErrNodeNotFound[K]{Key: key}
	}
	n := g.nodes[id]
	if layer < 0 || layer > n.level() {
		return nil, &ErrLayerOutOfRange{Layer: layer, MaxLayer: n.level()}
	}

	out := make([]K, len(n.friends[layer]))
	for i, f := range n.friends[layer] {
		out[i] = g.nodes[f].key
	}
	return out, nil
}

// Vector returns the stored copy of key's vector.
// The returned slice must not be modified.
func (g *Graph[K]) Vector(key K) ([]float32, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.index[key]
	if !ok {
		return nil, &ErrNodeNotFound[K]{Key: key}
	}
	return g.nodes[id].vec, nil
}

// Keys returns all keys in insertion order.
func (g *Graph[K]) Keys() []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]K, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.key
	}
	return out
}
