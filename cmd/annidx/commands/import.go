package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/annidx/source"
)

func newImportCommand(a *app) *cobra.Command {
	var create bool

	cmd := &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Copy JSON Lines records into the configured SQL source",
		Long: `Insert every record of a JSON Lines file into the SQL table named by
source.table, storing embeddings in pgvector text form. source.type must be
postgres or sqlite.

Example:
  annidx import docs.jsonl --create --config sqlite.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if cfg.Source.Type != source.DriverPostgres && cfg.Source.Type != source.DriverSQLite {
				return errors.New("import requires source.type postgres or sqlite")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			recs, err := source.ReadJSONL(f)
			if err != nil {
				return err
			}

			db, err := source.Open(cfg.Source.Type, cfg.Source.DSN, cfg.SourceTable())
			if err != nil {
				return err
			}
			defer db.Close()

			if create {
				if err := db.CreateTable(ctx); err != nil {
					return err
				}
			}
			if err := db.Insert(ctx, recs); err != nil {
				return err
			}

			a.logger.InfoContext(ctx, "import completed", "records", len(recs), "table", cfg.SourceTable().Name)
			printf(cmd.OutOrStdout(), "imported %d records\n", len(recs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&create, "create", false, "create the table if it does not exist")
	return cmd
}
