package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/annidx/codec"
	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/snapshot"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, distance.MetricL2, cfg.DistanceMetric())

	opts, err := cfg.SnapshotOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, snapshot.CompressionZstd, opts.Compression)
	assert.Equal(t, snapshot.Float32, opts.Vectors)
	assert.Equal(t, codec.MsgPack{}, opts.Codec)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(`
metric: cosine
seed: 7
index:
  k: 32
  m: 8
  ef_search: 128
bench:
  top_n: 5
  sweep_ef: [16, 32, 64]
snapshot:
  codec: json
  compression: lz4
  vectors: float16
log:
  level: debug
  format: json
`)
	require.NoError(t, err)

	assert.Equal(t, distance.MetricCosine, cfg.DistanceMetric())
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, 32, cfg.Index.K)
	assert.Equal(t, 8, cfg.Index.M)
	// Unset fields keep their defaults.
	assert.Equal(t, hnsw.DefaultEFConstruction, cfg.Index.EFConstruction)
	assert.Equal(t, []int{16, 32, 64}, cfg.Bench.SweepEF)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	opts, err := cfg.SnapshotOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, codec.JSON{}, opts.Codec)
	assert.Equal(t, snapshot.CompressionLZ4, opts.Compression)
	assert.Equal(t, snapshot.Float16, opts.Vectors)

	bc := cfg.BenchConfig(nil)
	assert.Equal(t, distance.MetricCosine, bc.Metric)
	assert.Equal(t, 5, bc.TopN)
	assert.Equal(t, 128, bc.EFSearch)
	assert.Equal(t, uint64(7), bc.Seed)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "metrc: l2"},
		{name: "bad metric", yaml: "metric: manhattan"},
		{name: "negative k", yaml: "index:\n  k: -1"},
		{name: "bad codec", yaml: "snapshot:\n  codec: xml"},
		{name: "bad compression", yaml: "snapshot:\n  compression: brotli"},
		{name: "bad vectors", yaml: "snapshot:\n  vectors: int8"},
		{name: "bad source", yaml: "source:\n  type: csv"},
		{name: "sql without dsn", yaml: "source:\n  type: postgres"},
		{name: "s3 without bucket", yaml: "storage:\n  type: s3"},
		{name: "minio without endpoint", yaml: "storage:\n  type: minio\n  bucket: b"},
		{name: "bad storage", yaml: "storage:\n  type: ftp"},
		{name: "bad level", yaml: "log:\n  level: loud"},
		{name: "bad format", yaml: "log:\n  format: xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.yaml)
			assert.Error(t, err)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Metric = "nope"
	cfg.Storage.Type = "ftp"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
	assert.Contains(t, err.Error(), "ftp")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annidx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  type: badger
  path: ${ANNIDX_TEST_DIR}/kv
resources:
  memory_limit_bytes: 1048576
  io_limit_bytes_per_sec: 4096
`), 0o600))

	t.Setenv("ANNIDX_TEST_DIR", dir)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "badger", cfg.Storage.Type)
	assert.Equal(t, dir+"/kv", cfg.Storage.Path)

	rc := cfg.ResourceConfig()
	assert.Equal(t, int64(1048576), rc.MemoryLimitBytes)
	assert.Equal(t, int64(4096), rc.IOLimitBytesPerSec)

	t.Run("env path", func(t *testing.T) {
		t.Setenv(EnvPath, path)
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "badger", cfg.Storage.Type)
	})

	t.Run("no path", func(t *testing.T) {
		t.Setenv(EnvPath, "")
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "missing.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSourceTable(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "documents", cfg.SourceTable().Name)
	cfg.Source.Table = "items"
	tbl := cfg.SourceTable()
	assert.Equal(t, "items", tbl.Name)
	assert.Equal(t, "embedding", tbl.VectorColumn)
}
