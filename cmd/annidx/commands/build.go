package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annidx"
	"github.com/hupe1980/annidx/blobstore"
	"github.com/hupe1980/annidx/config"
	"github.com/hupe1980/annidx/source"
)

func newBuildCommand(a *app) *cobra.Command {
	var (
		input   string
		name    string
		k       int
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a collection from a source and save a snapshot",
		Long: `Read vectors from the configured source (or --input), build the
clustering and graph indexes and save a snapshot to the configured blob
store. The snapshot is then published as the store's current snapshot.

Example:
  annidx build --input docs.jsonl --name docs.anx
  annidx build --config pg.yaml --k 64`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if name == "" {
				name = cfg.Snapshot.Name
			}
			if !cmd.Flags().Changed("k") {
				k = cfg.Index.K
			}

			recs, err := loadRecords(ctx, cfg, input)
			if err != nil {
				return err
			}
			dim, err := source.Dimension(recs)
			if err != nil {
				return err
			}
			if dim == 0 {
				return errors.New("source contains no records")
			}

			c, err := annidx.New[string](dim, a.collectionOptions()...)
			if err != nil {
				return err
			}
			for _, r := range recs {
				if err := c.Put(ctx, r.ID, r.Vector); err != nil {
					return fmt.Errorf("put %s: %w", r.ID, err)
				}
			}
			// Duplicate ids leave outdated graph nodes behind.
			if c.StaleGraphKeys() > 0 {
				if err := c.RebuildGraph(ctx); err != nil {
					return err
				}
			}
			if err := c.Build(ctx, k, cfg.Index.MaxIterations); err != nil {
				return err
			}

			sopts, err := cfg.SnapshotOptions(a.resources)
			if err != nil {
				return err
			}
			blobs, closer, err := openStore(ctx, cfg.Storage, a.logger.Logger)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := c.Save(ctx, blobs, name, sopts); err != nil {
				return err
			}
			if publish {
				if err := blobstore.Publish(ctx, blobs, name); err != nil {
					return fmt.Errorf("publish %s: %w", name, err)
				}
			}

			printf(cmd.OutOrStdout(), "saved %s: %d vectors, dimension %d, %d clusters, graph max level %d\n",
				name, c.Len(), dim, c.Clusters().K(), c.Graph().MaxLevel())
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "JSON Lines file (overrides the configured source)")
	cmd.Flags().StringVar(&name, "name", "", "snapshot name (default snapshot.name)")
	cmd.Flags().IntVar(&k, "k", 0, "number of clusters (default index.k)")
	cmd.Flags().BoolVar(&publish, "publish", true, "make the snapshot the one search loads by default")
	return cmd
}

// loadRecords reads from input when set, otherwise from the configured source.
func loadRecords(ctx context.Context, cfg *config.Config, input string) ([]source.Record, error) {
	if input == "" && cfg.Source.Type == "jsonl" {
		input = cfg.Source.Path
	}
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return source.ReadJSONL(f)
	}
	if cfg.Source.Type == "jsonl" {
		return nil, errors.New("no input: set --input or source.path")
	}

	db, err := source.Open(cfg.Source.Type, cfg.Source.DSN, cfg.SourceTable())
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return db.Load(ctx, cfg.Source.Limit)
}
