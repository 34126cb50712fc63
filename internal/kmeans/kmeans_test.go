package kmeans

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/distance"
)

func TestTrain(t *testing.T) {
	ctx := context.Background()
	// 2 clusters: (0,0) and (10,10)
	vecs := [][]float32{
		{0, 0}, {0, 1}, {1, 0},
		{10, 10}, {10, 11}, {11, 10},
	}

	res, err := Train(ctx, vecs, [][]float32{{0, 0}, {10, 10}}, Options{
		Metric:        distance.MetricL2,
		MaxIterations: 100,
	})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, res.Assignments)

	assert.InDelta(t, 1.0/3, res.Centroids[0][0], 1e-5)
	assert.InDelta(t, 1.0/3, res.Centroids[0][1], 1e-5)
	assert.InDelta(t, 31.0/3, res.Centroids[1][0], 1e-5)
	assert.InDelta(t, 31.0/3, res.Centroids[1][1], 1e-5)
}

func TestTrain_DoesNotModifyInitial(t *testing.T) {
	initial := [][]float32{{0, 0}, {5, 5}}
	_, err := Train(context.Background(), [][]float32{{1, 1}, {6, 6}}, initial, Options{MaxIterations: 10})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 0}, {5, 5}}, initial)
}

func TestTrain_EmptyClusterKeepsPosition(t *testing.T) {
	vecs := [][]float32{{0, 0}, {0, 1}}
	res, err := Train(context.Background(), vecs, [][]float32{{0, 0}, {100, 100}}, Options{
		Metric:        distance.MetricL2,
		MaxIterations: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{100, 100}, res.Centroids[1])
	assert.Equal(t, []int{0, 0}, res.Assignments)
}

func TestTrain_TieGoesToLowestIndex(t *testing.T) {
	res, err := Train(context.Background(), [][]float32{{0}}, [][]float32{{1}, {-1}}, Options{
		Metric:        distance.MetricL2,
		MaxIterations: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Assignments)
}

func TestTrain_MaxIterations(t *testing.T) {
	vecs := [][]float32{{0}, {1}, {2}, {10}}
	res, err := Train(context.Background(), vecs, [][]float32{{0}, {1}}, Options{
		Metric:        distance.MetricL2,
		MaxIterations: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	assert.False(t, res.Converged)
	assert.Equal(t, [][]float32{{0}, {1}}, res.Centroids)
}

func TestTrain_AssignmentsMatchCentroidsWithoutConvergence(t *testing.T) {
	vecs := make([][]float32, 300)
	for i := range vecs {
		vecs[i] = []float32{float32(i % 17), float32(i%29) * 0.5}
	}
	initial := [][]float32{vecs[0], vecs[1], vecs[2]}

	for _, maxIter := range []int{1, 2, 3} {
		res, err := Train(context.Background(), vecs, initial, Options{
			Metric:        distance.MetricL2,
			MaxIterations: maxIter,
		})
		require.NoError(t, err)

		for i, v := range vecs {
			assert.Equal(t, Nearest(v, res.Centroids, distance.SquaredL2), res.Assignments[i], "iterations=%d vector %d", maxIter, i)
		}
	}
}

func TestTrain_Error(t *testing.T) {
	_, err := Train(context.Background(), [][]float32{{0, 0}}, [][]float32{{0, 0}}, Options{
		Metric:        distance.Metric(999),
		MaxIterations: 10,
	})
	assert.Error(t, err)
}

func TestTrain_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vecs := make([][]float32, 1000)
	for i := range vecs {
		vecs[i] = []float32{float32(i), float32(i)}
	}

	_, err := Train(ctx, vecs, [][]float32{{0, 0}, {500, 500}}, Options{MaxIterations: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrain_ParallelMatchesSerial(t *testing.T) {
	vecs := make([][]float32, 2000)
	for i := range vecs {
		x := float32(i % 97)
		vecs[i] = []float32{x, float32(i%13) * 3}
	}
	initial := [][]float32{vecs[0], vecs[500], vecs[1000], vecs[1500]}

	serial, err := Train(context.Background(), vecs, initial, Options{MaxIterations: 50})
	require.NoError(t, err)

	parallel, err := Train(context.Background(), vecs, initial, Options{MaxIterations: 50, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, serial.Assignments, parallel.Assignments)
	assert.Equal(t, serial.Centroids, parallel.Centroids)
	assert.Equal(t, serial.Iterations, parallel.Iterations)
}

func TestClosest(t *testing.T) {
	centroids := [][]float32{
		{0, 0},
		{10, 10},
		{20, 20},
	}

	res := Closest([]float32{1, 1}, centroids, 2, distance.SquaredL2)
	assert.Equal(t, []int{0, 1}, res)

	res = Closest([]float32{19, 19}, centroids, 1, distance.SquaredL2)
	assert.Equal(t, []int{2}, res)

	res = Closest([]float32{0, 0}, centroids, 10, distance.SquaredL2)
	assert.Len(t, res, 3)

	// Equidistant: lower index first.
	res = Closest([]float32{5, 5}, centroids, 2, distance.SquaredL2)
	assert.Equal(t, []int{0, 1}, res)

	assert.Nil(t, Closest([]float32{0, 0}, nil, 1, distance.SquaredL2))
}

func TestNearest(t *testing.T) {
	assert.Equal(t, -1, Nearest([]float32{0}, nil, distance.SquaredL2))
	assert.Equal(t, 1, Nearest([]float32{9}, [][]float32{{0}, {10}}, distance.SquaredL2))
}
