package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/places-crawler/internal/config"
	"github.com/sells-group/places-crawler/internal/coordqueue"
	"github.com/sells-group/places-crawler/internal/ledger"
	"github.com/sells-group/places-crawler/internal/region"
)

var statusCmd = &cobra.Command{
	Use:   "status [region...]",
	Short: "Show crawl progress per region",
	Long:  "Reports remaining coordinates, resume store presence, places collected and the bounding box still to cover. Without arguments every coordinate file in the input dir is listed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		names := args
		if len(names) == 0 {
			var err error
			if names, err = region.Discover(cfg.Data.InputDir); err != nil {
				return err
			}
		}
		if len(names) == 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "no coordinate files in %s\n", cfg.Data.InputDir)
			return nil
		}

		rows, err := collectStatus(cmd.Context(), cfg.Data, names)
		if err != nil {
			return err
		}
		formatStatus(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// regionStatus is one line of the status table.
type regionStatus struct {
	Name        string
	Total       int
	Remaining   int
	StoreExists bool
	Places      int
	Bound       orb.Bound
}

// collectStatus inspects regions concurrently. Inspection never creates or
// rewrites a resume store.
func collectStatus(ctx context.Context, dc config.DataConfig, names []string) ([]regionStatus, error) {
	rows := make([]regionStatus, len(names))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, name := range names {
		g.Go(func() error {
			paths, err := region.Resolve(name, dc.InputDir, dc.ResultsDir, dc.ResumeSuffix)
			if err != nil {
				return err
			}

			p, err := coordqueue.Inspect(coordqueue.Options{
				InputPath:  paths.Input,
				ResumePath: paths.Resume,
				Region:     paths.Name,
			})
			if err != nil {
				return err
			}

			l := ledger.New()
			if err := l.Seed(paths.Output); err != nil {
				return err
			}

			rows[i] = regionStatus{
				Name:        paths.Name,
				Total:       p.Total,
				Remaining:   len(p.Remaining),
				StoreExists: p.StoreExists,
				Places:      l.Len(),
				Bound:       p.Bound,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// formatStatus writes a tabular representation of region status to out.
func formatStatus(out io.Writer, rows []regionStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGION\tREMAINING\tTOTAL\tRESUME\tPLACES\tBOUNDS")
	_, _ = fmt.Fprintln(w, "------\t---------\t-----\t------\t------\t------")

	for _, r := range rows {
		resume := "no"
		if r.StoreExists {
			resume = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%s\n",
			r.Name, r.Remaining, r.Total, resume, r.Places, formatBound(r.Bound, r.Remaining),
		)
	}
	_ = w.Flush()
}

func formatBound(b orb.Bound, remaining int) string {
	if remaining == 0 {
		return "-"
	}
	return fmt.Sprintf("lat %.4f..%.4f lon %.4f..%.4f", b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
}
