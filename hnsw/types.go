package hnsw

import (
	"fmt"

	"github.com/hupe1980/annidx/model"
)

// ErrNodeNotFound is returned by accessors given an unknown key.
type ErrNodeNotFound[K model.Key] struct {
	Key K
}

func (e *ErrNodeNotFound[K]) Error() string {
	return fmt.Sprintf("node %v not found", e.Key)
}

func (e *ErrNodeNotFound[K]) Unwrap() error { return model.ErrKeyNotFound }

// ErrLayerOutOfRange is returned by Neighbors for a layer above the
// node's top layer.
type ErrLayerOutOfRange struct {
	Layer    int
	MaxLayer int
}

func (e *ErrLayerOutOfRange) Error() string {
	return fmt.Sprintf("layer %d out of range [0, %d]", e.Layer, e.MaxLayer)
}

type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
	MaxConnections int
}

type Stats struct {
	Options    map[string]string
	Parameters map[string]string
	Storage    map[string]string
	Levels     []LevelStats
}
