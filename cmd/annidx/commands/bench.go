package commands

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/spf13/cobra"

	"github.com/hupe1980/annidx/bench"
	"github.com/hupe1980/annidx/model"
	"github.com/hupe1980/annidx/source"
)

func newBenchCommand(a *app) *cobra.Command {
	var (
		format string
		input  string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure recall and latency of the IVF and HNSW indexes",
		Long: `Build both indexes over a dataset and compare their results with an
exact scan. The dataset is generated from bench.size, bench.dimension and
bench.clusters unless --input or bench.path names a JSON Lines file.

Example:
  annidx bench --format json
  annidx bench --input docs.jsonl --config bench.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if input == "" {
				input = cfg.Bench.Path
			}

			bcfg := cfg.BenchConfig(a.logger.Logger)

			var (
				report *bench.Report
				err    error
			)
			if input != "" {
				ds, derr := jsonlDataset(input, cfg.Bench.Queries, cfg.Seed)
				if derr != nil {
					return derr
				}
				report, err = runBench(cmd, a, ds, bcfg)
			} else {
				ds := bench.Synthetic(cfg.Bench.Size, cfg.Bench.Dim, cfg.Bench.Clusters, cfg.Bench.Queries, int64(cfg.Seed))
				report, err = runBench(cmd, a, ds, bcfg)
			}
			if err != nil {
				return err
			}
			a.exportReport(report)

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return report.WriteJSON(out)
			case "text":
				return report.WriteText(out)
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "report format (text, json)")
	cmd.Flags().StringVar(&input, "input", "", "JSON Lines dataset (overrides bench.path)")
	return cmd
}

func runBench[K model.Key](cmd *cobra.Command, a *app, ds *bench.Dataset[K], bcfg bench.Config) (*bench.Report, error) {
	ctx := cmd.Context()
	cfg := a.cfg

	if err := a.resources.AcquireBuild(ctx); err != nil {
		return nil, err
	}
	defer a.resources.ReleaseBuild()

	report, err := bench.Run(ctx, ds, bcfg)
	if err != nil {
		return nil, err
	}
	if cfg.Bench.SweepProbes {
		s, err := bench.ProbeSweep(ctx, ds, bcfg)
		if err != nil {
			return nil, err
		}
		report.AddSweep(s)
	}
	if len(cfg.Bench.SweepEF) > 0 {
		s, err := bench.EFSweep(ctx, ds, bcfg, cfg.Bench.SweepEF)
		if err != nil {
			return nil, err
		}
		report.AddSweep(s)
	}
	return report, nil
}

// exportReport publishes the measurements as gauges on the metrics registry.
func (a *app) exportReport(r *bench.Report) {
	f := promauto.With(a.registry)
	recall := f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "annidx", Subsystem: "bench", Name: "recall",
		Help: "Mean recall@k against exact search.",
	}, []string{"index"})
	qps := f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "annidx", Subsystem: "bench", Name: "qps",
		Help: "Queries per second.",
	}, []string{"index"})
	build := f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "annidx", Subsystem: "bench", Name: "build_seconds",
		Help: "Index build time.",
	}, []string{"index"})

	for _, idx := range r.Indexes {
		recall.WithLabelValues(idx.Name).Set(idx.Recall)
		qps.WithLabelValues(idx.Name).Set(idx.QPS)
		build.WithLabelValues(idx.Name).Set(idx.BuildTime.Seconds())
	}
}

// jsonlDataset loads records from path and samples n of them as queries.
func jsonlDataset(path string, n int, seed uint64) (*bench.Dataset[string], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := source.ReadJSONL(f)
	if err != nil {
		return nil, err
	}
	dim, err := source.Dimension(recs)
	if err != nil {
		return nil, err
	}

	ds := &bench.Dataset[string]{
		Name:      path,
		Dimension: dim,
		Keys:      make([]string, len(recs)),
		Vectors:   make([][]float32, len(recs)),
	}
	for i, r := range recs {
		ds.Keys[i] = r.ID
		ds.Vectors[i] = r.Vector
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for range min(n, len(recs)) {
		ds.Queries = append(ds.Queries, ds.Vectors[rng.IntN(len(recs))])
	}
	return ds, nil
}
