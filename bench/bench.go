package bench

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/flat"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/ivf"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/testutil"
	"github.com/hupe1980/annidx/vectorstore"
)

// Config controls a benchmark run.
type Config struct {
	Metric distance.Metric `json:"metric"`
	TopN   int             `json:"top_n"`

	// Clustering index. K <= 0 selects ivf.DefaultK.
	K             int `json:"k"`
	Probes        int `json:"probes"`
	MaxIterations int `json:"max_iterations"`

	// Graph index.
	M              int `json:"m"`
	EFConstruction int `json:"ef_construction"`
	EFSearch       int `json:"ef_search"`

	Seed uint64 `json:"seed"`

	// Concurrency bounds the number of queries in flight. 0 means GOMAXPROCS.
	Concurrency int `json:"concurrency"`

	// Warmup queries are run before measuring and not recorded.
	Warmup int `json:"warmup"`

	Logger *slog.Logger `json:"-"`
}

// DefaultConfig returns the configuration used when no values are given.
func DefaultConfig() Config {
	return Config{
		Metric:         distance.MetricL2,
		TopN:           10,
		Probes:         ivf.DefaultProbes,
		MaxIterations:  ivf.DefaultMaxIterations,
		M:              hnsw.DefaultM,
		EFConstruction: hnsw.DefaultEFConstruction,
		EFSearch:       hnsw.DefaultEFSearch,
		Seed:           1,
		Warmup:         10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopN <= 0 {
		c.TopN = d.TopN
	}
	if c.Probes <= 0 {
		c.Probes = d.Probes
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.M <= 0 {
		c.M = d.M
	}
	if c.EFConstruction <= 0 {
		c.EFConstruction = d.EFConstruction
	}
	if c.EFSearch <= 0 {
		c.EFSearch = d.EFSearch
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.GOMAXPROCS(0)
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

type searchFunc[K model.Key] func(ctx context.Context, q []float32) ([]model.Result[K], error)

// session holds what every measurement over one dataset shares.
type session[K model.Key] struct {
	cfg   Config
	ds    *Dataset[K]
	store *vectorstore.Store[K]
	truth [][]model.Result[K]
}

func newSession[K model.Key](ctx context.Context, ds *Dataset[K], cfg Config) (*session[K], error) {
	cfg = cfg.withDefaults()

	store, err := ds.Store()
	if err != nil {
		return nil, err
	}

	exact, err := flat.New(store, func(o *flat.Options) {
		o.Metric = cfg.Metric
		o.Workers = cfg.Concurrency
	})
	if err != nil {
		return nil, err
	}

	cfg.Logger.Info("computing ground truth", "dataset", ds.Name, "queries", len(ds.Queries), "top_n", cfg.TopN)
	truth, err := exact.SearchBatch(ctx, ds.Queries, cfg.TopN)
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}

	return &session[K]{cfg: cfg, ds: ds, store: store, truth: truth}, nil
}

func (s *session[K]) buildClusters(ctx context.Context) (*ivf.Index[K], time.Duration, error) {
	idx, err := ivf.New[K](func(o *ivf.Options) {
		o.Metric = s.cfg.Metric
		o.Seed = s.cfg.Seed
		o.Probes = s.cfg.Probes
		o.MaxIterations = s.cfg.MaxIterations
		o.Workers = s.cfg.Concurrency
		o.Logger = s.cfg.Logger
	})
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	if err := idx.Build(ctx, s.store, ivf.BuildOptions{K: s.cfg.K}); err != nil {
		return nil, 0, fmt.Errorf("ivf build: %w", err)
	}
	return idx, time.Since(start), nil
}

func (s *session[K]) buildGraph(ctx context.Context) (*hnsw.Graph[K], time.Duration, error) {
	g, err := hnsw.New[K](s.ds.Dimension, func(o *hnsw.Options) {
		o.Metric = s.cfg.Metric
		o.Seed = s.cfg.Seed
		o.M = s.cfg.M
		o.EFConstruction = s.cfg.EFConstruction
		o.EFSearch = s.cfg.EFSearch
		o.Logger = s.cfg.Logger
	})
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	for i, v := range s.ds.Vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		if err := g.Insert(s.ds.Keys[i], v); err != nil {
			return nil, 0, fmt.Errorf("hnsw insert %v: %w", s.ds.Keys[i], err)
		}
	}
	return g, time.Since(start), nil
}

// measure runs every query through fn with bounded concurrency.
func (s *session[K]) measure(ctx context.Context, fn searchFunc[K]) (Measurement, error) {
	queries := s.ds.Queries
	if len(queries) == 0 {
		return Measurement{}, nil
	}

	for i := range min(s.cfg.Warmup, len(queries)) {
		if _, err := fn(ctx, queries[i]); err != nil {
			return Measurement{}, err
		}
	}

	latencies := make([]float64, len(queries))
	recalls := make([]float64, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	start := time.Now()
	for i, q := range queries {
		g.Go(func() error {
			t0 := time.Now()
			res, err := fn(gctx, q)
			if err != nil {
				return err
			}
			latencies[i] = float64(time.Since(t0))
			recalls[i] = testutil.Recall(s.truth[i], res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Measurement{}, err
	}
	wall := time.Since(start)

	return Measurement{
		Recall:  stat.Mean(recalls, nil),
		QPS:     float64(len(queries)) / wall.Seconds(),
		Latency: summarize(latencies),
	}, nil
}

// summarize sorts latencies (nanoseconds) in place.
func summarize(latencies []float64) Latency {
	slices.Sort(latencies)
	q := func(p float64) time.Duration {
		return time.Duration(stat.Quantile(p, stat.Empirical, latencies, nil))
	}
	return Latency{
		Mean: time.Duration(stat.Mean(latencies, nil)),
		P50:  q(0.50),
		P95:  q(0.95),
		P99:  q(0.99),
		Max:  time.Duration(latencies[len(latencies)-1]),
	}
}

// Run builds both indexes over ds and measures them against exact search.
func Run[K model.Key](ctx context.Context, ds *Dataset[K], cfg Config) (*Report, error) {
	s, err := newSession(ctx, ds, cfg)
	if err != nil {
		return nil, err
	}
	cfg = s.cfg

	report := newReport(ds, cfg)

	clusters, buildTime, err := s.buildClusters(ctx)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("ivf built", "k", clusters.K(), "iterations", clusters.Iterations(), "duration", buildTime)

	m, err := s.measure(ctx, func(ctx context.Context, q []float32) ([]model.Result[K], error) {
		return clusters.Search(ctx, q, cfg.TopN, cfg.Probes)
	})
	if err != nil {
		return nil, fmt.Errorf("ivf search: %w", err)
	}
	report.Indexes = append(report.Indexes, IndexReport{
		Name:        "ivf",
		BuildTime:   buildTime,
		Params:      map[string]int{"k": clusters.K(), "probes": min(cfg.Probes, clusters.K()), "iterations": clusters.Iterations()},
		Measurement: m,
	})

	graph, buildTime, err := s.buildGraph(ctx)
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("hnsw built", "nodes", graph.Len(), "max_level", graph.MaxLevel(), "duration", buildTime)

	m, err = s.measure(ctx, func(ctx context.Context, q []float32) ([]model.Result[K], error) {
		return graph.Search(ctx, q, cfg.TopN, cfg.EFSearch)
	})
	if err != nil {
		return nil, fmt.Errorf("hnsw search: %w", err)
	}
	report.Indexes = append(report.Indexes, IndexReport{
		Name:        "hnsw",
		BuildTime:   buildTime,
		Params:      map[string]int{"m": cfg.M, "ef_construction": cfg.EFConstruction, "ef_search": cfg.EFSearch, "max_level": graph.MaxLevel()},
		Measurement: m,
	})

	return report, nil
}

// ProbeSweep builds the clustering index once and measures every probe
// count from 1 to K.
func ProbeSweep[K model.Key](ctx context.Context, ds *Dataset[K], cfg Config) (*Sweep, error) {
	s, err := newSession(ctx, ds, cfg)
	if err != nil {
		return nil, err
	}

	clusters, _, err := s.buildClusters(ctx)
	if err != nil {
		return nil, err
	}

	sweep := &Sweep{Index: "ivf", Param: "probes"}
	for probes := 1; probes <= clusters.K(); probes++ {
		m, err := s.measure(ctx, func(ctx context.Context, q []float32) ([]model.Result[K], error) {
			return clusters.Search(ctx, q, s.cfg.TopN, probes)
		})
		if err != nil {
			return nil, err
		}
		sweep.Points = append(sweep.Points, SweepPoint{Value: probes, Measurement: m})
	}
	return sweep, nil
}

// EFSweep builds the graph index once and measures each efSearch value.
func EFSweep[K model.Key](ctx context.Context, ds *Dataset[K], cfg Config, efs []int) (*Sweep, error) {
	s, err := newSession(ctx, ds, cfg)
	if err != nil {
		return nil, err
	}

	graph, _, err := s.buildGraph(ctx)
	if err != nil {
		return nil, err
	}

	sweep := &Sweep{Index: "hnsw", Param: "ef_search"}
	for _, ef := range efs {
		m, err := s.measure(ctx, func(ctx context.Context, q []float32) ([]model.Result[K], error) {
			return graph.Search(ctx, q, s.cfg.TopN, ef)
		})
		if err != nil {
			return nil, err
		}
		sweep.Points = append(sweep.Points, SweepPoint{Value: ef, Measurement: m})
	}
	return sweep, nil
}
