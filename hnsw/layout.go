package hnsw

import (
	"fmt"
	"slices"

	"github.com/hupe1980/annidx/model"
)

// Layout is the portable form of a graph: nodes in insertion order with
// their per-layer neighbor lists given as positions in Nodes.
type Layout[K model.Key] struct {
	Dimension      int
	M              int
	EFConstruction int
	EFSearch       int
	Entry          int // position of the entry point, -1 when empty
	Nodes          []NodeLayout[K]
}

// NodeLayout is one node of a Layout.
type NodeLayout[K model.Key] struct {
	Key     K
	Vector  []float32
	Friends [][]uint32
}

// Layout exports the graph.
func (g *Graph[K]) Layout() *Layout[K] {
	g.mu.RLock()
	defer g.mu.RUnlock()

	l := &Layout[K]{
		Dimension:      g.dim,
		M:              g.opts.M,
		EFConstruction: g.opts.EFConstruction,
		EFSearch:       g.opts.EFSearch,
		Entry:          -1,
		Nodes:          make([]NodeLayout[K], len(g.nodes)),
	}
	if g.maxLevel >= 0 {
		l.Entry = int(g.entry)
	}

	for i, n := range g.nodes {
		friends := make([][]uint32, len(n.friends))
		for lc, fs := range n.friends {
			friends[lc] = make([]uint32, len(fs))
			for j, f := range fs {
				friends[lc][j] = uint32(f)
			}
		}
		l.Nodes[i] = NodeLayout[K]{Key: n.key, Vector: n.vec, Friends: friends}
	}

	return l
}

// FromLayout rebuilds a graph from l without re-running insertion.
// optFns may set options not carried by the layout, such as Metric.
func FromLayout[K model.Key](l *Layout[K], optFns ...func(o *Options)) (*Graph[K], error) {
	fns := append([]func(o *Options){func(o *Options) {
		o.M = l.M
		o.EFConstruction = l.EFConstruction
		o.EFSearch = l.EFSearch
	}}, optFns...)

	g, err := New[K](l.Dimension, fns...)
	if err != nil {
		return nil, err
	}

	if len(l.Nodes) == 0 {
		return g, nil
	}
	if l.Entry < 0 || l.Entry >= len(l.Nodes) {
		return nil, fmt.Errorf("entry point %d out of range [0, %d)", l.Entry, len(l.Nodes))
	}

	g.nodes = make([]*node[K], len(l.Nodes))
	for i, nl := range l.Nodes {
		if err := model.CheckDimension(nl.Vector, l.Dimension); err != nil {
			return nil, fmt.Errorf("node %v: %w", nl.Key, err)
		}
		if len(nl.Friends) == 0 {
			return nil, fmt.Errorf("node %v has no layers", nl.Key)
		}
		if _, dup := g.index[nl.Key]; dup {
			return nil, fmt.Errorf("node %v: %w", nl.Key, model.ErrDuplicateKey)
		}

		friends := make([][]model.RowID, len(nl.Friends))
		for lc, fs := range nl.Friends {
			friends[lc] = make([]model.RowID, len(fs))
			for j, f := range fs {
				if int(f) >= len(l.Nodes) || len(l.Nodes[f].Friends) <= lc {
					return nil, fmt.Errorf("node %v layer %d: invalid neighbor %d", nl.Key, lc, f)
				}
				friends[lc][j] = model.RowID(f)
			}
		}

		g.nodes[i] = &node[K]{key: nl.Key, vec: slices.Clone(nl.Vector), friends: friends}
		g.index[nl.Key] = model.RowID(i)
	}

	top := 0
	for _, n := range g.nodes {
		top = max(top, n.level())
	}
	if lvl := g.nodes[l.Entry].level(); lvl < top {
		return nil, fmt.Errorf("entry point %v at layer %d is below the top layer %d", g.nodes[l.Entry].key, lvl, top)
	}

	g.entry = model.RowID(l.Entry)
	g.maxLevel = top
	g.countInbound()

	return g, nil
}
