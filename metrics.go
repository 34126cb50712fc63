package annidx

import (
	"sync/atomic"
	"time"
)

// Index names reported to MetricsCollector.RecordSearch and in logs.
const (
	IndexClusters = "clusters"
	IndexGraph    = "graph"
	IndexFlat     = "flat"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// observability package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordPut is called after each store write.
	RecordPut(duration time.Duration, err error)

	// RecordRemove is called after each store delete.
	RecordRemove(duration time.Duration, err error)

	// RecordBuild is called after each clustering build.
	// vectors is the number of vectors clustered.
	RecordBuild(vectors int, duration time.Duration, err error)

	// RecordInsert is called after each graph insert.
	RecordInsert(duration time.Duration, err error)

	// RecordSearch is called after each search operation.
	// index is IndexClusters, IndexGraph or IndexFlat; k is the number of
	// neighbors requested.
	RecordSearch(index string, k int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)              {}
func (NoopMetricsCollector) RecordBuild(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordInsert(time.Duration, error)              {}
func (NoopMetricsCollector) RecordSearch(string, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	PutCount         atomic.Int64
	PutErrors        atomic.Int64
	RemoveCount      atomic.Int64
	RemoveErrors     atomic.Int64
	BuildCount       atomic.Int64
	BuildErrors      atomic.Int64
	BuildTotalNanos  atomic.Int64
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	ClusterSearches  atomic.Int64
	GraphSearches    atomic.Int64
	FlatSearches     atomic.Int64
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(_ time.Duration, err error) {
	b.PutCount.Add(1)
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(_ time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(_ int, duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(index string, _ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
	switch index {
	case IndexClusters:
		b.ClusterSearches.Add(1)
	case IndexGraph:
		b.GraphSearches.Add(1)
	case IndexFlat:
		b.FlatSearches.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		PutCount:        b.PutCount.Load(),
		PutErrors:       b.PutErrors.Load(),
		RemoveCount:     b.RemoveCount.Load(),
		RemoveErrors:    b.RemoveErrors.Load(),
		BuildCount:      b.BuildCount.Load(),
		BuildErrors:     b.BuildErrors.Load(),
		BuildAvgNanos:   avg(b.BuildTotalNanos.Load(), b.BuildCount.Load()),
		InsertCount:     b.InsertCount.Load(),
		InsertErrors:    b.InsertErrors.Load(),
		InsertAvgNanos:  avg(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		ClusterSearches: b.ClusterSearches.Load(),
		GraphSearches:   b.GraphSearches.Load(),
		FlatSearches:    b.FlatSearches.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	PutCount        int64
	PutErrors       int64
	RemoveCount     int64
	RemoveErrors    int64
	BuildCount      int64
	BuildErrors     int64
	BuildAvgNanos   int64
	InsertCount     int64
	InsertErrors    int64
	InsertAvgNanos  int64
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	ClusterSearches int64
	GraphSearches   int64
	FlatSearches    int64
}
