// Package config loads the YAML configuration used by the annidx command.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/annidx/bench"
	"github.com/hupe1980/annidx/codec"
	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/ivf"
	"github.com/hupe1980/annidx/resource"
	"github.com/hupe1980/annidx/snapshot"
	"github.com/hupe1980/annidx/source"
)

// EnvPath names the environment variable consulted when no path is given.
const EnvPath = "ANNIDX_CONFIG"

// Config is the top-level configuration file.
type Config struct {
	Metric string `yaml:"metric"`
	Seed   uint64 `yaml:"seed"`

	Index     IndexConfig     `yaml:"index"`
	Bench     BenchConfig     `yaml:"bench"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Resources ResourcesConfig `yaml:"resources"`
	Log       LogConfig       `yaml:"log"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`
}

// IndexConfig holds clustering and graph parameters.
type IndexConfig struct {
	K              int  `yaml:"k"` // 0 selects ivf.DefaultK
	Probes         int  `yaml:"probes"`
	MaxIterations  int  `yaml:"max_iterations"`
	M              int  `yaml:"m"`
	EFConstruction int  `yaml:"ef_construction"`
	EFSearch       int  `yaml:"ef_search"`
	Heuristic      bool `yaml:"heuristic"`
}

// BenchConfig configures the bench command.
type BenchConfig struct {
	TopN        int `yaml:"top_n"`
	Concurrency int `yaml:"concurrency"`
	Warmup      int `yaml:"warmup"`

	// Dataset is generated when Path is empty.
	Size     int `yaml:"size"`
	Dim      int `yaml:"dimension"`
	Clusters int `yaml:"clusters"`
	Queries  int `yaml:"queries"`

	// Path is a JSON Lines file of records; queries are sampled from it.
	Path string `yaml:"path"`

	SweepProbes bool  `yaml:"sweep_probes"`
	SweepEF     []int `yaml:"sweep_ef"`
}

// SourceConfig selects where the build command reads vectors.
type SourceConfig struct {
	Type  string `yaml:"type"` // jsonl, postgres, sqlite
	Path  string `yaml:"path"` // jsonl
	DSN   string `yaml:"dsn"`  // postgres, sqlite
	Table string `yaml:"table"`
	Limit int    `yaml:"limit"`
}

// StorageConfig selects the blob store snapshots are written to.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, local, s3, minio, badger

	Path string `yaml:"path"` // local, badger

	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`

	// CommitTable keeps the published snapshot pointer in DynamoDB (s3 only).
	CommitTable string `yaml:"commit_table"`

	// CacheBytes wraps the store in a read cache when positive.
	CacheBytes int64 `yaml:"cache_bytes"`
}

// SnapshotConfig controls snapshot encoding.
type SnapshotConfig struct {
	Name        string `yaml:"name"`
	Codec       string `yaml:"codec"`
	Compression string `yaml:"compression"`
	Vectors     string `yaml:"vectors"`
}

// ResourcesConfig maps onto resource.Config.
type ResourcesConfig struct {
	MemoryLimitBytes    int64 `yaml:"memory_limit_bytes"`
	MaxConcurrentBuilds int64 `yaml:"max_concurrent_builds"`
	IOLimitBytesPerSec  int64 `yaml:"io_limit_bytes_per_sec"`
}

// LogConfig configures the command logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Metric: distance.MetricL2.String(),
		Seed:   1,
		Index: IndexConfig{
			Probes:         ivf.DefaultProbes,
			MaxIterations:  ivf.DefaultMaxIterations,
			M:              hnsw.DefaultM,
			EFConstruction: hnsw.DefaultEFConstruction,
			EFSearch:       hnsw.DefaultEFSearch,
			Heuristic:      true,
		},
		Bench: BenchConfig{
			TopN:     10,
			Warmup:   10,
			Size:     10000,
			Dim:      64,
			Clusters: 16,
			Queries:  200,
		},
		Source: SourceConfig{
			Type:  "jsonl",
			Table: source.DefaultTable.Name,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "./data",
		},
		Snapshot: SnapshotConfig{
			Name:        "index.anx",
			Codec:       "msgpack",
			Compression: snapshot.CompressionZstd.String(),
			Vectors:     snapshot.Float32.String(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over Default. An empty path falls back to $ANNIDX_CONFIG
// and then to Default alone. Environment references in the file are expanded
// and unknown fields are rejected.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := cfg.decode(os.ExpandEnv(string(data))); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML text over Default and validates the result.
func Parse(text string) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(text); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(text string) error {
	dec := yaml.NewDecoder(strings.NewReader(text))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error

	if _, err := distance.ParseMetric(c.Metric); err != nil {
		errs = append(errs, err)
	}
	if c.Index.K < 0 {
		errs = append(errs, fmt.Errorf("index.k must be >= 0, got %d", c.Index.K))
	}
	if c.Index.M < 0 || c.Index.EFConstruction < 0 || c.Index.EFSearch < 0 || c.Index.Probes < 0 {
		errs = append(errs, errors.New("index parameters must not be negative"))
	}
	if c.Bench.Size < 0 || c.Bench.Dim < 0 || c.Bench.Queries < 0 {
		errs = append(errs, errors.New("bench dataset sizes must not be negative"))
	}

	switch c.Source.Type {
	case "jsonl":
	case source.DriverPostgres, source.DriverSQLite:
		if c.Source.DSN == "" {
			errs = append(errs, fmt.Errorf("source.dsn is required for %s", c.Source.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source.type %q", c.Source.Type))
	}

	switch c.Storage.Type {
	case "memory":
	case "local", "badger":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for %s", c.Storage.Type))
		}
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for s3"))
		}
	case "minio":
		if c.Storage.Bucket == "" || c.Storage.Endpoint == "" {
			errs = append(errs, errors.New("storage.bucket and storage.endpoint are required for minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}

	if _, err := c.SnapshotOptions(nil); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// DistanceMetric returns the parsed metric.
func (c *Config) DistanceMetric() distance.Metric {
	m, err := distance.ParseMetric(c.Metric)
	if err != nil {
		return distance.MetricL2
	}
	return m
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// ResourceConfig returns the resource limits.
func (c *Config) ResourceConfig() resource.Config {
	return resource.Config{
		MemoryLimitBytes:    c.Resources.MemoryLimitBytes,
		MaxConcurrentBuilds: c.Resources.MaxConcurrentBuilds,
		IOLimitBytesPerSec:  c.Resources.IOLimitBytesPerSec,
	}
}

// SnapshotOptions returns snapshot writer options using rc for I/O limits.
func (c *Config) SnapshotOptions(rc *resource.Controller) (snapshot.Options, error) {
	opts := snapshot.DefaultOptions
	opts.Resources = rc

	if c.Snapshot.Codec != "" {
		cd, ok := codec.ByName(c.Snapshot.Codec)
		if !ok {
			return opts, fmt.Errorf("unknown snapshot.codec %q (want one of %s)", c.Snapshot.Codec, strings.Join(codec.Names, ", "))
		}
		opts.Codec = cd
	}

	comp, err := snapshot.ParseCompression(c.Snapshot.Compression)
	if err != nil {
		return opts, err
	}
	opts.Compression = comp

	venc, err := snapshot.ParseVectorEncoding(c.Snapshot.Vectors)
	if err != nil {
		return opts, err
	}
	opts.Vectors = venc

	return opts, nil
}

// BenchConfig returns the harness configuration.
func (c *Config) BenchConfig(logger *slog.Logger) bench.Config {
	return bench.Config{
		Metric:         c.DistanceMetric(),
		TopN:           c.Bench.TopN,
		K:              c.Index.K,
		Probes:         c.Index.Probes,
		MaxIterations:  c.Index.MaxIterations,
		M:              c.Index.M,
		EFConstruction: c.Index.EFConstruction,
		EFSearch:       c.Index.EFSearch,
		Seed:           c.Seed,
		Concurrency:    c.Bench.Concurrency,
		Warmup:         c.Bench.Warmup,
		Logger:         logger,
	}
}

// SourceTable returns the table layout for SQL sources.
func (c *Config) SourceTable() source.Table {
	t := source.DefaultTable
	if c.Source.Table != "" {
		t.Name = c.Source.Table
	}
	return t
}
