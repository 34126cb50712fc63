// Package observability exports collection metrics to Prometheus.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/annidx"
)

var _ annidx.MetricsCollector = (*PrometheusCollector)(nil)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "annidx"

// PrometheusCollector implements annidx.MetricsCollector.
type PrometheusCollector struct {
	ops       *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	built     prometheus.Gauge
	searchK   *prometheus.HistogramVec
	lastBuild prometheus.Gauge
}

// Option configures a PrometheusCollector.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace overrides DefaultNamespace.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) { o.buckets = b }
}

// NewPrometheusCollector registers the collector's metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusCollector(reg prometheus.Registerer, opts ...Option) *PrometheusCollector {
	o := options{
		namespace: DefaultNamespace,
		// Microseconds for a flat scan over a few vectors up to seconds for a large build.
		buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}
	for _, fn := range opts {
		fn(&o)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusCollector{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "operations_total",
			Help:      "Total operations processed, by operation, index and status.",
		}, []string{"op", "index", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of collection operations.",
			Buckets:   o.buckets,
		}, []string{"op", "index"}),
		built: f.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "clustered_vectors",
			Help:      "Number of vectors covered by the last successful clustering build.",
		}),
		searchK: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: o.namespace,
			Name:      "search_k",
			Help:      "Number of neighbors requested per search.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"index"}),
		lastBuild: f.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "last_build_timestamp_seconds",
			Help:      "Unix time of the last successful clustering build.",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (p *PrometheusCollector) observe(op, index string, d time.Duration, err error) {
	p.ops.WithLabelValues(op, index, status(err)).Inc()
	p.latency.WithLabelValues(op, index).Observe(d.Seconds())
}

// RecordPut implements annidx.MetricsCollector.
func (p *PrometheusCollector) RecordPut(d time.Duration, err error) {
	p.observe("put", "store", d, err)
}

// RecordRemove implements annidx.MetricsCollector.
func (p *PrometheusCollector) RecordRemove(d time.Duration, err error) {
	p.observe("remove", "store", d, err)
}

// RecordBuild implements annidx.MetricsCollector.
func (p *PrometheusCollector) RecordBuild(vectors int, d time.Duration, err error) {
	p.observe("build", annidx.IndexClusters, d, err)
	if err == nil {
		p.built.Set(float64(vectors))
		p.lastBuild.SetToCurrentTime()
	}
}

// RecordInsert implements annidx.MetricsCollector.
func (p *PrometheusCollector) RecordInsert(d time.Duration, err error) {
	p.observe("insert", annidx.IndexGraph, d, err)
}

// RecordSearch implements annidx.MetricsCollector.
func (p *PrometheusCollector) RecordSearch(index string, k int, d time.Duration, err error) {
	p.observe("search", index, d, err)
	if k > 0 {
		p.searchK.WithLabelValues(index).Observe(float64(k))
	}
}

// Labels returns the label values used for an operation counter. Exposed for
// dashboards and tests that need to address a series directly.
func Labels(op, index string, err error) []string {
	return []string{op, index, status(err)}
}

// Ops returns the operation counter vector.
func (p *PrometheusCollector) Ops() *prometheus.CounterVec { return p.ops }

// ClusteredVectors returns the gauge holding the last build size.
func (p *PrometheusCollector) ClusteredVectors() prometheus.Gauge { return p.built }
