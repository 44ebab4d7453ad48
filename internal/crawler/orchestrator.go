package crawler

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/model"
	"github.com/sells-group/places-crawler/internal/resilience"
)

// DefaultQueries is the query set run against every coordinate.
var DefaultQueries = []string{"celular", "iphone"}

// Queue is the resumable coordinate store. *coordqueue.Queue satisfies it.
type Queue interface {
	Coordinates() []model.Coordinate
	Consume(c model.Coordinate) error
	Remaining() int
	Drop() error
}

// Summary totals one region run.
type Summary struct {
	RunID       string `json:"run_id"`
	Region      string `json:"region"`
	Coordinates int    `json:"coordinates"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Pages       int    `json:"pages"`
	Written     int    `json:"written"`
	Duplicates  int    `json:"duplicates"`
	Skipped     int    `json:"skipped"`
}

func (s *Summary) add(r PageResult) {
	s.Pages += r.Pages
	s.Written += r.Written
	s.Duplicates += r.Duplicates
	s.Skipped += r.Skipped
}

// Orchestrator crawls one region's coordinate queue.
type Orchestrator struct {
	region    string
	queue     Queue
	paginator *Paginator
	queries   []string
	runID     string
	log       *zap.Logger
}

// NewOrchestrator creates an orchestrator for region. An empty query list
// falls back to DefaultQueries.
func NewOrchestrator(region string, q Queue, p *Paginator, queries []string) *Orchestrator {
	if len(queries) == 0 {
		queries = DefaultQueries
	}
	runID := uuid.NewString()
	return &Orchestrator{
		region:    region,
		queue:     q,
		paginator: p,
		queries:   queries,
		runID:     runID,
		log: zap.L().With(
			zap.String("component", "crawler.orchestrator"),
			zap.String("run_id", runID),
			zap.String("region", region),
		),
	}
}

// RunID identifies this run in logs.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run processes every queued coordinate in order. A coordinate is consumed
// only after all queries finished for it. A fatal error is returned as is and
// ends the run; cancellation ends the run leaving the current coordinate
// queued. Once the queue is empty the resume store is removed.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	coords := o.queue.Coordinates()
	sum := Summary{RunID: o.runID, Region: o.region, Coordinates: len(coords)}

	o.log.Info("region crawl starting",
		zap.Int("coordinates", len(coords)),
		zap.Strings("queries", o.queries),
	)

	for i, c := range coords {
		if err := ctx.Err(); err != nil {
			return sum, o.interrupted(sum, err)
		}

		clog := o.log.With(
			zap.Int("row", c.Row),
			zap.Float64("latitude", c.Latitude),
			zap.Float64("longitude", c.Longitude),
		)
		clog.Info("processing coordinate", zap.Int("index", i+1), zap.Int("of", len(coords)))

		err := o.crawlCoordinate(ctx, c, &sum)
		switch {
		case resilience.IsFatal(err):
			clog.Error("fatal provider error, halting", zap.Error(err))
			return sum, err
		case ctx.Err() != nil:
			return sum, o.interrupted(sum, ctx.Err())
		case err != nil:
			clog.Error("coordinate failed, keeping it for the next run", zap.Error(err))
			sum.Failed++
			continue
		}

		if err := o.queue.Consume(c); err != nil {
			clog.Error("could not remove coordinate from resume store", zap.Error(err))
			sum.Failed++
			continue
		}
		sum.Completed++
	}

	if o.queue.Remaining() == 0 {
		if err := o.queue.Drop(); err != nil {
			o.log.Warn("could not remove drained resume store", zap.Error(err))
		}
	}

	o.log.Info("region crawl complete",
		zap.Int("completed", sum.Completed),
		zap.Int("failed", sum.Failed),
		zap.Int("remaining", o.queue.Remaining()),
		zap.Int("pages", sum.Pages),
		zap.Int("written", sum.Written),
		zap.Int("duplicates", sum.Duplicates),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

func (o *Orchestrator) crawlCoordinate(ctx context.Context, c model.Coordinate, sum *Summary) error {
	for _, q := range o.queries {
		res, err := o.paginator.Run(ctx, c, q)
		sum.add(res)
		if err != nil {
			if resilience.IsFatal(err) {
				return err
			}
			return eris.Wrapf(err, "crawler: query %q", q)
		}
	}
	return nil
}

func (o *Orchestrator) interrupted(sum Summary, cause error) error {
	o.log.Warn("crawl interrupted",
		zap.Int("completed", sum.Completed),
		zap.Int("remaining", o.queue.Remaining()),
	)
	return eris.Wrap(cause, "crawler: interrupted")
}
