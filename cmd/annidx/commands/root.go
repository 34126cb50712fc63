package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hupe1980/annidx"
	"github.com/hupe1980/annidx/config"
	"github.com/hupe1980/annidx/hnsw"
	"github.com/hupe1980/annidx/ivf"
	"github.com/hupe1980/annidx/observability"
	"github.com/hupe1980/annidx/resource"
)

// app holds state shared by all subcommands of one invocation.
type app struct {
	cfgFile     string
	logLevel    string
	metricsAddr string

	cfg       *config.Config
	logger    *annidx.Logger
	resources *resource.Controller
	registry  *prometheus.Registry
	metrics   *observability.PrometheusCollector

	stopMetrics func(context.Context) error
}

// NewRootCommand returns the annidx command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "annidx",
		Short: "Approximate nearest-neighbor index tool",
		Long: `annidx builds IVF and HNSW indexes over embedding vectors, stores
them as snapshots in a blob store and runs queries and benchmarks.

Configuration is read from --config or $ANNIDX_CONFIG (YAML).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default $"+config.EnvPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(newBenchCommand(a))
	root.AddCommand(newBuildCommand(a))
	root.AddCommand(newSearchCommand(a))
	root.AddCommand(newImportCommand(a))

	return root
}

// Execute runs the command tree with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.metricsAddr != "" {
		cfg.MetricsAddr = a.metricsAddr
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	a.cfg = cfg

	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), hopts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), hopts)
	}
	a.logger = annidx.NewLogger(handler)

	a.resources = resource.NewController(cfg.ResourceConfig())

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewPrometheusCollector(a.registry)

	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, a.registry, a.logger.Logger)
		if err != nil {
			return err
		}
		a.stopMetrics = stop
	}
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.stopMetrics == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return a.stopMetrics(ctx)
}

// collectionOptions returns facade options derived from the configuration.
func (a *app) collectionOptions() []annidx.Option {
	idx := a.cfg.Index
	return []annidx.Option{
		annidx.WithMetric(a.cfg.DistanceMetric()),
		annidx.WithSeed(a.cfg.Seed),
		annidx.WithLogger(a.logger),
		annidx.WithMetricsCollector(a.metrics),
		annidx.WithResourceController(a.resources),
		annidx.WithGraph(func(o *hnsw.Options) {
			o.M = idx.M
			o.EFConstruction = idx.EFConstruction
			o.EFSearch = idx.EFSearch
			o.Heuristic = idx.Heuristic
		}),
		annidx.WithClusters(func(o *ivf.Options) {
			o.Probes = idx.Probes
			o.MaxIterations = idx.MaxIterations
		}),
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
