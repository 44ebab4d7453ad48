package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/region"
	"github.com/sells-group/places-crawler/internal/sink"
	"github.com/sells-group/places-crawler/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <region>",
	Short: "Load a region's output CSV into SQLite or PostgreSQL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		paths, err := region.Resolve(args[0], cfg.Data.InputDir, cfg.Data.ResultsDir, cfg.Data.ResumeSuffix)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Export.Driver, cfg.Export.DatabaseURL)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inserted, total, err := runExport(ctx, st, paths)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "region %s: %d new places loaded, %d stored\n", paths.Name, inserted, total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

// runExport migrates st and loads the region's output into it. It returns
// the number of newly inserted places and the region's stored total.
func runExport(ctx context.Context, st store.Store, paths region.Paths) (int64, int64, error) {
	recs, err := sink.ReadAll(paths.Output)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "export: read output for region %q", paths.Name)
	}

	if err := st.Migrate(ctx); err != nil {
		return 0, 0, err
	}

	inserted, err := st.InsertPlaces(ctx, recs)
	if err != nil {
		return 0, 0, err
	}

	total, err := st.CountPlaces(ctx, paths.Name)
	if err != nil {
		return 0, 0, err
	}

	zap.L().Info("export complete",
		zap.String("region", paths.Name),
		zap.Int("read", len(recs)),
		zap.Int64("inserted", inserted),
		zap.Int64("total", total),
	)
	return inserted, total, nil
}
