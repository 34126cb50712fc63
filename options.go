package annidx

import (
	"log/slog"

	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/ivf"
	"github.com/hupe1980/annidx/resource"
)

type options struct {
	metric           distance.Metric
	seed             uint64
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
	graphOptions     []func(*hnsw.Options)
	clusterOptions   []func(*ivf.Options)
	autoGraph        bool
}

// Option configures New and Load.
type Option func(*options)

// WithMetric selects the distance metric for both indexes.
// Load ignores it: the snapshot records the metric it was built with.
func WithMetric(m distance.Metric) Option {
	return func(o *options) {
		o.metric = m
	}
}

// WithSeed seeds k-means initialization and graph level assignment.
// Equal seeds and equal inputs give identical indexes.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithGraph passes options to the graph index.
//
// Example:
//
//	coll, _ := annidx.New[string](384, annidx.WithGraph(func(o *hnsw.Options) {
//	    o.M = 32
//	    o.EFSearch = 128
//	}))
func WithGraph(optFns ...func(*hnsw.Options)) Option {
	return func(o *options) {
		o.graphOptions = append(o.graphOptions, optFns...)
	}
}

// WithClusters passes options to the clustering index.
func WithClusters(optFns ...func(*ivf.Options)) Option {
	return func(o *options) {
		o.clusterOptions = append(o.clusterOptions, optFns...)
	}
}

// WithAutoGraph controls whether Put also inserts into the graph index.
// Enabled by default. When disabled, the graph is only fed by RebuildGraph.
func WithAutoGraph(enabled bool) Option {
	return func(o *options) {
		o.autoGraph = enabled
	}
}

// WithResourceController bounds memory, concurrent builds and snapshot I/O.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &annidx.BasicMetricsCollector{}
//	coll, _ := annidx.New[int](128, annidx.WithMetricsCollector(metrics))
//	// ... use coll ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metric:           distance.MetricL2,
		seed:             1,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		autoGraph:        true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
