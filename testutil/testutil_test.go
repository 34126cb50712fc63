package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/model"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))

	for _, vec := range v {
		assert.InDelta(t, float32(1.0), distance.Dot(vec, vec), 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 32, 5, 0.1)

	assert.Equal(t, 100, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)

	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
}

func TestZipf(t *testing.T) {
	rng := NewRNG(42)

	counts := make([]int, 10)
	for range 5000 {
		counts[rng.Zipf(10, 1.5)]++
	}

	assert.Greater(t, counts[0], counts[9])
	assert.Equal(t, 0, rng.Zipf(1, 1.5))
}

func TestExactTopK(t *testing.T) {
	vecs := [][]float32{{0}, {3}, {1}, {1}}
	keys := []string{"a", "b", "d", "c"}

	res := ExactTopK([]float32{0}, keys, vecs, 3, distance.SquaredL2)

	assert.Equal(t, []string{"a", "c", "d"}, model.Keys(res))
	assert.Equal(t, []int{0, 1, 2}, Sequence(3))
}

func TestRecall(t *testing.T) {
	truth := []model.Result[int]{{Key: 1}, {Key: 2}, {Key: 3}, {Key: 4}}

	assert.Equal(t, 1.0, Recall(truth, truth))
	assert.Equal(t, 0.5, Recall(truth, []model.Result[int]{{Key: 2}, {Key: 4}, {Key: 9}}))
	assert.Equal(t, 1.0, Recall[int](nil, nil))
	assert.Equal(t, 0.0, Recall(nil, truth))
}
