// Package bench measures the clustering and graph indexes against exact
// search on the same collection.
//
// Run builds both indexes, answers every query with each of them and
// with flat search, and reports build time, latency percentiles, QPS and
// mean recall@topN. ProbeSweep and EFSweep trace recall against the
// probes and efSearch knobs.
//
//	ds := bench.Synthetic(10000, 64, 32, 200, 42)
//	report, err := bench.Run(ctx, ds, bench.DefaultConfig())
//	report.WriteText(os.Stdout)
package bench
