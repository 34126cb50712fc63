// Package ivf implements an inverted-file clustering index (IVFFlat).
//
// Build partitions every vector of a vectorstore.Store into K clusters
// with Lloyd's k-means. Search ranks the centroids against the query,
// probes the nearest few clusters and scores their members exactly.
// More probes trade latency for recall; probing all K clusters is an
// exact search.
//
// # Lifecycle
//
//	Empty --Build--> Building --ok--> Ready --Build--> Building ...
//
// A build that fails or is cancelled leaves the index in StateBuilding
// and Search reports model.ErrIndexNotBuilt until a later Build succeeds.
//
// The index does not follow mutations of the store. Keys added after
// Build are not visible; once a key is removed or replaced Search
// reports model.ErrStaleIndex and the index has to be rebuilt.
package ivf
