// Package distance provides vector distance calculations.
//
// Dot products, norms and scaling delegate to gonum's pure-Go BLAS
// implementation; the element-wise squared difference is a plain loop
// to avoid a scratch allocation per call.
//
// # Supported Metrics
//
//   - MetricL2: squared Euclidean distance (default)
//   - MetricEuclidean: Euclidean distance
//   - MetricCosine: 1 - cosine similarity, in [0, 2]
//   - MetricInnerProduct: negative inner product
//
// Lower is always closer. An index must be queried with the metric it
// was built with.
//
// # Usage
//
//	d, err := distance.Distance(a, b, distance.MetricCosine)
//	fn, _ := distance.Provider(distance.MetricL2) // unchecked kernel
package distance
