package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx"
)

func TestPrometheusCollector_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.RecordPut(time.Millisecond, nil)
	p.RecordPut(time.Millisecond, nil)
	p.RecordPut(time.Millisecond, errors.New("boom"))
	p.RecordRemove(time.Microsecond, nil)
	p.RecordInsert(time.Microsecond, nil)
	p.RecordBuild(42, time.Second, nil)
	p.RecordSearch(annidx.IndexGraph, 10, time.Microsecond, nil)
	p.RecordSearch(annidx.IndexClusters, 5, time.Microsecond, annidx.ErrStaleIndex)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.Ops().WithLabelValues(Labels("put", "store", nil)...)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Ops().WithLabelValues(Labels("put", "store", errors.New("x"))...)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Ops().WithLabelValues("remove", "store", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Ops().WithLabelValues("insert", annidx.IndexGraph, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Ops().WithLabelValues("search", annidx.IndexClusters, "error")))
	assert.Equal(t, 42.0, testutil.ToFloat64(p.ClusteredVectors()))

	// A failed build leaves the gauge untouched.
	p.RecordBuild(7, time.Second, errors.New("boom"))
	assert.Equal(t, 42.0, testutil.ToFloat64(p.ClusteredVectors()))

	expected := `
# HELP annidx_operations_total Total operations processed, by operation, index and status.
# TYPE annidx_operations_total counter
annidx_operations_total{index="clusters",op="build",status="error"} 1
annidx_operations_total{index="clusters",op="build",status="success"} 1
annidx_operations_total{index="clusters",op="search",status="error"} 1
annidx_operations_total{index="graph",op="insert",status="success"} 1
annidx_operations_total{index="graph",op="search",status="success"} 1
annidx_operations_total{index="store",op="put",status="error"} 1
annidx_operations_total{index="store",op="put",status="success"} 2
annidx_operations_total{index="store",op="remove",status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "annidx_operations_total"))
}

func TestPrometheusCollector_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg, WithNamespace("idx"), WithBuckets([]float64{0.1, 1}))
	p.RecordSearch(annidx.IndexFlat, 3, 10*time.Millisecond, nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "idx_operations_total")
	assert.Contains(t, names, "idx_operation_duration_seconds")
	assert.Contains(t, names, "idx_search_k")
}

func TestPrometheusCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusCollector(reg)
	assert.Panics(t, func() { NewPrometheusCollector(reg) })
}

func TestPrometheusCollector_Collection(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	c, err := annidx.New[string](2, annidx.WithMetricsCollector(p))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "a", []float32{0, 0}))
	require.NoError(t, c.Put(ctx, "b", []float32{1, 1}))
	_, err = c.Search(ctx, []float32{0.1, 0.1}, 1)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.Ops().WithLabelValues("put", "store", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.Ops().WithLabelValues("insert", annidx.IndexGraph, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Ops().WithLabelValues("search", annidx.IndexGraph, "success")))
}
