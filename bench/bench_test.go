package bench

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/model"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.K = 8
	cfg.Probes = 2
	cfg.M = 8
	cfg.EFConstruction = 64
	cfg.EFSearch = 32
	cfg.Concurrency = 2
	cfg.Warmup = 2
	return cfg
}

func TestRun(t *testing.T) {
	ds := Synthetic(500, 8, 6, 20, 42)

	report, err := Run(context.Background(), ds, smallConfig())
	require.NoError(t, err)

	assert.Equal(t, 500, report.Vectors)
	assert.Equal(t, 20, report.Queries)
	assert.Equal(t, "l2", report.Metric)
	assert.Equal(t, runtime.GOARCH, report.Host.GOARCH)
	require.Len(t, report.Indexes, 2)

	for _, ix := range report.Indexes {
		assert.GreaterOrEqual(t, ix.Recall, 0.0)
		assert.LessOrEqual(t, ix.Recall, 1.0)
		assert.Positive(t, ix.QPS)
		assert.LessOrEqual(t, ix.Latency.P50, ix.Latency.P99)
		assert.LessOrEqual(t, ix.Latency.P99, ix.Latency.Max)
	}
	assert.Equal(t, "ivf", report.Indexes[0].Name)
	assert.Equal(t, 8, report.Indexes[0].Params["k"])
	assert.Equal(t, "hnsw", report.Indexes[1].Name)
}

func TestProbeSweep(t *testing.T) {
	ds := Synthetic(400, 8, 5, 15, 7)

	sweep, err := ProbeSweep(context.Background(), ds, smallConfig())
	require.NoError(t, err)

	require.Len(t, sweep.Points, 8)
	prev := 0.0
	for _, p := range sweep.Points {
		assert.GreaterOrEqual(t, p.Recall, prev, "probes=%d", p.Value)
		prev = p.Recall
	}
	assert.Equal(t, 1.0, prev)
}

func TestEFSweep(t *testing.T) {
	ds := Synthetic(300, 8, 5, 10, 7)

	sweep, err := EFSweep(context.Background(), ds, smallConfig(), []int{10, 300})
	require.NoError(t, err)

	require.Len(t, sweep.Points, 2)
	assert.Equal(t, 10, sweep.Points[0].Value)
	assert.Equal(t, "ef_search", sweep.Param)
}

func TestReportWriters(t *testing.T) {
	ds := Synthetic(200, 4, 3, 5, 1)

	report, err := Run(context.Background(), ds, smallConfig())
	require.NoError(t, err)
	report.AddSweep(&Sweep{Index: "ivf", Param: "probes", Points: []SweepPoint{{Value: 1}}})
	report.AddSweep(nil)

	var text bytes.Buffer
	require.NoError(t, report.WriteText(&text))
	assert.Contains(t, text.String(), "RECALL")
	assert.Contains(t, text.String(), "ivf sweep over probes")

	var raw bytes.Buffer
	require.NoError(t, report.WriteJSON(&raw))

	var decoded Report
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, report.Dataset, decoded.Dataset)
	assert.Len(t, decoded.Indexes, 2)
	assert.Len(t, decoded.Sweeps, 1)
}

func TestDatasetValidate(t *testing.T) {
	tests := []struct {
		name string
		ds   Dataset[int]
	}{
		{"no dimension", Dataset[int]{Vectors: [][]float32{{1}}, Keys: []int{1}}},
		{"empty", Dataset[int]{Dimension: 1}},
		{"key count", Dataset[int]{Dimension: 1, Vectors: [][]float32{{1}}, Keys: []int{1, 2}}},
		{"query dimension", Dataset[int]{Dimension: 1, Vectors: [][]float32{{1}}, Keys: []int{1}, Queries: [][]float32{{1, 2}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.ds.Validate())
		})
	}

	_, err := Run(context.Background(), &Dataset[int]{Dimension: 1}, smallConfig())
	assert.ErrorIs(t, err, model.ErrEmptyCollection)
}

func TestSummarize(t *testing.T) {
	lat := summarize([]float64{4, 1, 3, 2})
	assert.Equal(t, time.Duration(2), lat.P50)
	assert.Equal(t, time.Duration(4), lat.P99)
	assert.Equal(t, time.Duration(4), lat.Max)
	assert.Equal(t, time.Duration(2), lat.Mean)
}
