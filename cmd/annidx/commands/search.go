package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annidx"
	"github.com/hupe1980/annidx/blobstore"
	"github.com/hupe1980/annidx/distance"
	"github.com/hupe1980/annidx/source"
)

func newSearchCommand(a *app) *cobra.Command {
	var (
		name   string
		vector string
		key    string
		topN   int
		index  string
		probes int
		ef     int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query a saved snapshot",
		Long: `Load a snapshot from the configured blob store and print the nearest
neighbors of a query vector. The query is given in pgvector text form with
--vector, or taken from a stored vector with --key.

With the cosine metric a similarity column (1 - distance) is printed.

Example:
  annidx search --vector "[0.1,0.2,0.3]" -k 5
  annidx search --key doc-42 --index graph --ef 128`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if (vector == "") == (key == "") {
				return errors.New("exactly one of --vector or --key is required")
			}

			blobs, closer, err := openStore(ctx, cfg.Storage, a.logger.Logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			if name == "" {
				if name, err = resolveName(ctx, blobs, cfg.Snapshot.Name); err != nil {
					return err
				}
			}

			c, err := annidx.Load[string](ctx, blobs, name, a.collectionOptions()...)
			if err != nil {
				return err
			}

			var q []float32
			if key != "" {
				if q, err = c.Get(key); err != nil {
					return fmt.Errorf("key %q: %w", key, err)
				}
			} else if q, err = source.ParseVectorText(vector); err != nil {
				return err
			}

			var results []annidx.Result[string]
			switch index {
			case "auto":
				results, err = c.Search(ctx, q, topN)
			case annidx.IndexClusters:
				results, err = c.SearchClusters(ctx, q, topN, probes)
			case annidx.IndexGraph:
				results, err = c.SearchGraph(ctx, q, topN, ef)
			case annidx.IndexFlat, "exact":
				results, err = c.SearchExact(ctx, q, topN)
			default:
				return fmt.Errorf("unknown index %q", index)
			}
			if err != nil {
				return err
			}

			cosine := c.Metric() == distance.MetricCosine
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if cosine {
				printf(w, "RANK\tKEY\tDISTANCE\tSIMILARITY\n")
			} else {
				printf(w, "RANK\tKEY\tDISTANCE\n")
			}
			for i, r := range results {
				if cosine {
					printf(w, "%d\t%s\t%.6f\t%.4f\n", i+1, r.Key, r.Distance, distance.Similarity(r.Distance))
				} else {
					printf(w, "%d\t%s\t%.6f\n", i+1, r.Key, r.Distance)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "snapshot name (default the published snapshot, then snapshot.name)")
	cmd.Flags().StringVar(&vector, "vector", "", `query vector, e.g. "[0.1,0.2]"`)
	cmd.Flags().StringVar(&key, "key", "", "use the stored vector of this key as the query")
	cmd.Flags().IntVarP(&topN, "top", "k", 10, "number of neighbors")
	cmd.Flags().StringVar(&index, "index", "auto", "index to query (auto, clusters, graph, flat)")
	cmd.Flags().IntVar(&probes, "probes", 0, "clusters scanned (default index.probes)")
	cmd.Flags().IntVar(&ef, "ef", 0, "graph candidate list width (default index.ef_search)")
	return cmd
}

// resolveName returns the published snapshot, or fallback when none is.
func resolveName(ctx context.Context, blobs blobstore.Store, fallback string) (string, error) {
	name, err := blobstore.Current(ctx, blobs)
	if errors.Is(err, blobstore.ErrNotFound) {
		return fallback, nil
	}
	return name, err
}
