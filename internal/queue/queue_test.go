package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/model"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("Min", func(t *testing.T) {
		pq := NewMin(4)
		for i, d := range []float32{3, 1, 2, 1} {
			pq.PushItem(PriorityQueueItem{Node: row(i), Distance: d})
		}
		require.Equal(t, 4, pq.Len())

		var order []PriorityQueueItem
		for pq.Len() > 0 {
			item, ok := pq.PopItem()
			require.True(t, ok)
			order = append(order, item)
		}
		assert.Equal(t, []PriorityQueueItem{
			{Node: 1, Distance: 1},
			{Node: 3, Distance: 1},
			{Node: 2, Distance: 2},
			{Node: 0, Distance: 3},
		}, order)
	})

	t.Run("Max", func(t *testing.T) {
		pq := NewMax(4)
		for i, d := range []float32{3, 1, 3, 2} {
			pq.PushItem(PriorityQueueItem{Node: row(i), Distance: d})
		}

		top, ok := pq.TopItem()
		require.True(t, ok)
		assert.Equal(t, PriorityQueueItem{Node: 2, Distance: 3}, top)

		var dists []float32
		for pq.Len() > 0 {
			item, _ := pq.PopItem()
			dists = append(dists, item.Distance)
		}
		assert.Equal(t, []float32{3, 3, 2, 1}, dists)
	})

	t.Run("Empty", func(t *testing.T) {
		pq := NewMin(0)
		_, ok := pq.PopItem()
		assert.False(t, ok)
		_, ok = pq.TopItem()
		assert.False(t, ok)
	})

	t.Run("Reset", func(t *testing.T) {
		pq := NewMin(2)
		pq.PushItem(PriorityQueueItem{Node: 1, Distance: 1})
		pq.Reset()
		assert.Zero(t, pq.Len())
		assert.Empty(t, pq.Items())
	})
}

func row(i int) model.RowID { return model.RowID(i) }
