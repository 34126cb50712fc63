package flat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/testutil"
	"github.com/hupe1980/annidx/vectorstore"
)

func TestSearch(t *testing.T) {
	store, err := vectorstore.New[string](2)
	require.NoError(t, err)
	require.NoError(t, store.Put("far", []float32{10, 10}))
	require.NoError(t, store.Put("b", []float32{1, 0}))
	require.NoError(t, store.Put("a", []float32{0, 1}))
	require.NoError(t, store.Put("origin", []float32{0, 0}))

	f, err := New(store)
	require.NoError(t, err)

	res, err := f.Search(context.Background(), []float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []model.Result[string]{
		{Key: "origin", Distance: 0},
		{Key: "a", Distance: 1},
		{Key: "b", Distance: 1},
	}, res)

	require.NoError(t, store.Remove("origin"))
	res, err = f.Search(context.Background(), []float32{0, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "far"}, model.Keys(res))
}

func TestSearchErrors(t *testing.T) {
	store, err := vectorstore.New[int](2)
	require.NoError(t, err)

	f, err := New(store, func(o *Options) { o.Metric = distance.MetricCosine })
	require.NoError(t, err)

	var mismatch *model.ErrDimensionMismatch
	_, err = f.Search(context.Background(), []float32{1}, 1)
	assert.ErrorAs(t, err, &mismatch)

	_, err = f.Search(context.Background(), []float32{1, 1}, 0)
	assert.ErrorIs(t, err, model.ErrInvalidK)

	res, err := f.Search(context.Background(), []float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = New(store, func(o *Options) { o.Metric = distance.Metric(9) })
	assert.Error(t, err)
}

func TestSearchBatch(t *testing.T) {
	vecs := testutil.NewRNG(1).UniformVectors(300, 8)
	store, err := vectorstore.New[int](8)
	require.NoError(t, err)
	for i, v := range vecs {
		require.NoError(t, store.Put(i, v))
	}

	f, err := New(store, func(o *Options) { o.Workers = 3 })
	require.NoError(t, err)

	queries := vecs[:10]
	batch, err := f.SearchBatch(context.Background(), queries, 5)
	require.NoError(t, err)
	require.Len(t, batch, 10)

	keys := testutil.Sequence(300)
	for i, q := range queries {
		assert.Equal(t, testutil.ExactTopK(q, keys, vecs, 5, distance.SquaredL2), batch[i])
		assert.Equal(t, i, batch[i][0].Key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.SearchBatch(ctx, queries, 5)
	assert.ErrorIs(t, err, context.Canceled)
}
