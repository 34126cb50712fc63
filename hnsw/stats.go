package hnsw

import (
	"fmt"
	"strconv"
)

// Stats returns statistics about the HNSW graph.
func (g *Graph[K]) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	levels := make([]LevelStats, g.maxLevel+1)
	for i := range levels {
		levels[i].Level = i
	}

	for _, n := range g.nodes {
		for l, friends := range n.friends {
			levels[l].Nodes++
			levels[l].Connections += len(friends)
			levels[l].MaxConnections = max(levels[l].MaxConnections, len(friends))
		}
	}

	for i := range levels {
		if levels[i].Nodes > 0 {
			levels[i].AvgConnections = float64(levels[i].Connections) / float64(levels[i].Nodes)
		}
	}

	return Stats{
		Options: map[string]string{
			"Type":      "HNSW",
			"Metric":    g.opts.Metric.String(),
			"Heuristic": strconv.FormatBool(g.opts.Heuristic),
		},
		Parameters: map[string]string{
			"M":              strconv.Itoa(g.opts.M),
			"EFConstruction": strconv.Itoa(g.opts.EFConstruction),
			"EFSearch":       strconv.Itoa(g.opts.EFSearch),
			"mL":             fmt.Sprintf("%.4f", g.ml),
		},
		Storage: map[string]string{
			"Nodes":     strconv.Itoa(len(g.nodes)),
			"MaxLevel":  strconv.Itoa(g.maxLevel),
			"Dimension": strconv.Itoa(g.dim),
		},
		Levels: levels,
	}
}
