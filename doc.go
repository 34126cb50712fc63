// Package annidx provides approximate nearest-neighbor search over
// fixed-dimension float32 vectors.
//
// A Collection keeps vectors in memory and serves them through two
// indexes: an IVF clustering index (k-means partitions, probed at query
// time) and an HNSW graph (layered proximity graph, searched greedily).
// An exact scan is always available as a fallback and as ground truth.
//
// # Quick Start
//
//	ctx := context.Background()
//	coll, _ := annidx.New[string](384, annidx.WithMetric(distance.MetricCosine))
//
//	_ = coll.Put(ctx, "doc-1", embedding1)
//	_ = coll.Put(ctx, "doc-2", embedding2)
//
//	// Graph search works immediately.
//	res, _ := coll.SearchGraph(ctx, query, 10, 64)
//
//	// The clustering index needs an explicit build.
//	_ = coll.Build(ctx, 0, 0) // k = round(sqrt(n))
//	res, _ = coll.SearchClusters(ctx, query, 10, 4)
//
// # Deletion
//
// Remove deletes from the store immediately. The clustering index is not
// repaired: SearchClusters returns ErrStaleIndex until the next Build.
// The graph keeps removed nodes for navigation but never returns them.
//
// # Persistence
//
//	store := blobstore.NewLocalStore("./indexes")
//	_ = coll.Save(ctx, store, "docs.anx", snapshot.DefaultOptions)
//	coll, _ = annidx.Load[string](ctx, store, "docs.anx")
//
// Snapshots go to any blobstore.Store: local files, S3, MinIO or Badger.
//
// # Observability
//
// WithLogger attaches a structured slog logger; WithMetricsCollector
// receives per-operation timings (see observability.PrometheusCollector).
package annidx
