package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/config"
	"github.com/sells-group/places-crawler/internal/coordqueue"
	"github.com/sells-group/places-crawler/internal/crawler"
	"github.com/sells-group/places-crawler/internal/monitoring"
	"github.com/sells-group/places-crawler/internal/region"
	"github.com/sells-group/places-crawler/internal/sink"
	"github.com/sells-group/places-crawler/pkg/valueserp"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl <region>",
	Short: "Crawl places around every coordinate of a region",
	Long:  "Reads <input_dir>/<region>.csv, searches every coordinate for each configured query and appends new places to <results_dir>/<region>_output.csv. Progress is kept in a resume store next to the input so an interrupted crawl continues where it stopped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		paths, err := crawlPaths(cfg, args[0])
		if err != nil {
			return err
		}

		sum, runErr := runCrawl(ctx, cfg, paths, newSearchClient(cfg.Search))
		notifyRun(cfg.Alert, sum, runErr)
		if runErr != nil {
			return runErr
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(),
			"region %s (run %s): %d/%d coordinates done, %d failed, %d places written, %d duplicates\n",
			sum.Region, sum.RunID, sum.Completed, sum.Coordinates, sum.Failed, sum.Written, sum.Duplicates,
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

// crawlPaths resolves the region's files and checks that its input exists
// before validating the crawl settings.
func crawlPaths(c *config.Config, name string) (region.Paths, error) {
	paths, err := region.Resolve(name, c.Data.InputDir, c.Data.ResultsDir, c.Data.ResumeSuffix)
	if err != nil {
		return region.Paths{}, err
	}
	if _, err := os.Stat(paths.Input); err != nil {
		return region.Paths{}, eris.Wrapf(err, "crawl: no coordinate file for region %q", paths.Name)
	}
	if err := c.Validate("crawl"); err != nil {
		return region.Paths{}, err
	}
	return paths, nil
}

func newSearchClient(sc config.SearchConfig) valueserp.Client {
	return valueserp.NewClient(sc.APIKey,
		valueserp.WithBaseURL(sc.BaseURL),
		valueserp.WithHTTPClient(&http.Client{Timeout: time.Duration(sc.TimeoutSecs) * time.Second}),
		valueserp.WithLocale(valueserp.Locale{
			SearchType:   sc.SearchType,
			GoogleDomain: sc.GoogleDomain,
			GL:           sc.GL,
			HL:           sc.HL,
		}),
		valueserp.WithRateLimit(sc.RateLimit),
	)
}

// runCrawl wires the queue, sink and search client for one region and runs it.
func runCrawl(ctx context.Context, c *config.Config, paths region.Paths, client valueserp.Client) (crawler.Summary, error) {
	sum := crawler.Summary{Region: paths.Name}

	q, err := coordqueue.Load(coordqueue.Options{
		InputPath:  paths.Input,
		ResumePath: paths.Resume,
		Region:     paths.Name,
		Zoom:       c.Crawl.Zoom,
	})
	if err != nil {
		return sum, err
	}

	out, err := sink.Open(paths.Output)
	if err != nil {
		return sum, err
	}
	defer func() {
		if err := out.Close(); err != nil {
			zap.L().Error("close output", zap.String("path", out.Path()), zap.Error(err))
		}
	}()

	limits := crawler.Limits{
		PageSize:         c.Crawl.PageSize,
		DupIDLimit:       c.Crawl.DupIDLimit,
		FullDupPageLimit: c.Crawl.FullDupPageLimit,
		PageDelay:        c.Crawl.PageDelay,
	}
	p := crawler.NewPaginator(crawler.NewSearcher(client), out, limits)
	o := crawler.NewOrchestrator(paths.Name, q, p, c.Crawl.Queries)

	zap.L().Info("crawl prepared",
		zap.String("run_id", o.RunID()),
		zap.String("region", paths.Name),
		zap.Int("queued", q.Remaining()),
		zap.String("bound", formatBound(q.Bound(), q.Remaining())),
		zap.Int("known_places", out.Ledger().Len()),
		zap.String("output", out.Path()),
	)

	return o.Run(ctx)
}

// notifyRun posts alerts for a halted run or failed coordinates when a
// webhook is configured.
func notifyRun(ac config.AlertConfig, sum crawler.Summary, runErr error) {
	a := monitoring.NewAlerter(ac)
	if !a.Enabled() {
		return
	}
	alerts := a.Evaluate(monitoring.Snapshot(sum, runErr))
	if len(alerts) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.SendAlerts(ctx, alerts)
}
