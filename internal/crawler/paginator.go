package crawler

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/model"
	"github.com/sells-group/places-crawler/pkg/valueserp"
)

// Limits bound how far a single coordinate × query is paged.
type Limits struct {
	// PageSize is the provider's full page length. A shorter page ends
	// pagination.
	PageSize int
	// DupIDLimit is the duplicate budget; pagination stops once the running
	// duplicate count exceeds it.
	DupIDLimit int
	// FullDupPageLimit is the number of consecutive all-duplicate pages that
	// ends pagination.
	FullDupPageLimit int
	// PageDelay is slept between page requests.
	PageDelay time.Duration
}

// DefaultLimits returns the provider's page size and the stock thresholds.
func DefaultLimits() Limits {
	return Limits{
		PageSize:         20,
		DupIDLimit:       19,
		FullDupPageLimit: 3,
		PageDelay:        time.Second,
	}
}

// Writer appends a record unless its place ID is already known and reports
// whether a row was written. *sink.Sink satisfies it.
type Writer interface {
	Append(rec model.ResultRecord) (bool, error)
}

// Stop reasons reported in PageResult.
const (
	StopNoResults     = "no_results"
	StopShortPage     = "short_page"
	StopDupBudget     = "duplicate_budget"
	StopFullDupStreak = "full_duplicate_streak"
)

// PageResult summarizes one pagination run.
type PageResult struct {
	State      model.PaginationState
	Pages      int
	Written    int
	Duplicates int
	Skipped    int
	StopReason string
}

// Paginator pages through one coordinate × query until a stop condition.
type Paginator struct {
	searcher *Searcher
	out      Writer
	limits   Limits
	log      *zap.Logger
}

// NewPaginator creates a paginator writing new places to out.
func NewPaginator(s *Searcher, out Writer, limits Limits) *Paginator {
	return &Paginator{
		searcher: s,
		out:      out,
		limits:   limits,
		log:      zap.L().With(zap.String("component", "crawler.paginator")),
	}
}

// Run pages through results for coord and query. Fatal provider errors are
// returned unchanged. A write failure or a cancelled delay is returned wrapped.
func (p *Paginator) Run(ctx context.Context, coord model.Coordinate, query string) (PageResult, error) {
	res := PageResult{State: model.NewPaginationState()}
	st := &res.State
	log := p.log.With(zap.Int("row", coord.Row), zap.String("query", query))

	for {
		batch, err := p.searcher.Fetch(ctx, coord, query, st.Page)
		if err != nil {
			return res, err
		}
		if batch == nil {
			res.StopReason = StopNoResults
			break
		}
		res.Pages++

		newFound := false
		identified, pageDups := 0, 0
		for _, item := range batch.Results {
			if strings.TrimSpace(item.PlaceID) == "" {
				log.Warn("result without place id, skipping",
					zap.Int("page", st.Page),
					zap.Int("position", item.Position),
					zap.String("title", item.Title),
				)
				res.Skipped++
				continue
			}
			identified++

			wrote, err := p.out.Append(toRecord(item, coord.Region))
			if err != nil {
				return res, eris.Wrapf(err, "crawler: write page %d", st.Page)
			}
			if wrote {
				newFound = true
				res.Written++
				continue
			}
			st.DuplicateCount++
			res.Duplicates++
			pageDups++
		}

		if identified > 0 && pageDups == identified {
			st.ConsecutiveFullDuplicatePages++
		} else {
			st.ConsecutiveFullDuplicatePages = 0
		}

		if reason := p.stopReason(st, newFound, len(batch.Results)); reason != "" {
			res.StopReason = reason
			if reason == StopFullDupStreak {
				log.Info("consecutive fully duplicate pages, stopping",
					zap.Int("pages", st.ConsecutiveFullDuplicatePages),
				)
			}
			break
		}

		st.Page++
		if err := sleep(ctx, p.limits.PageDelay); err != nil {
			return res, eris.Wrap(err, "crawler: page delay")
		}
	}

	log.Info("pagination finished",
		zap.String("reason", res.StopReason),
		zap.Int("pages", res.Pages),
		zap.Int("written", res.Written),
		zap.Int("duplicates", res.Duplicates),
	)
	return res, nil
}

// stopReason returns "" when another page should be requested.
func (p *Paginator) stopReason(st *model.PaginationState, newFound bool, size int) string {
	switch {
	case !newFound && st.ConsecutiveFullDuplicatePages >= p.limits.FullDupPageLimit:
		return StopFullDupStreak
	case size != p.limits.PageSize:
		return StopShortPage
	case st.DuplicateCount > p.limits.DupIDLimit:
		return StopDupBudget
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toRecord(item valueserp.PlaceResult, region string) model.ResultRecord {
	rec := model.ResultRecord{
		Position: item.Position,
		Title:    item.Title,
		Link:     item.Link,
		PlaceID:  item.PlaceID,
		Address:  item.Address,
		City:     orNotAvailable(item.City),
		State:    orNotAvailable(item.State),
		Phone:    item.Phone,
		Rating:   item.Rating,
		Reviews:  item.Reviews,
		Region:   region,
	}
	if gps := item.GPSCoordinates; gps != nil {
		lat, lon := gps.Latitude, gps.Longitude
		rec.Latitude = &lat
		rec.Longitude = &lon
	}
	return rec
}

func orNotAvailable(s string) string {
	if s == "" {
		return model.NotAvailable
	}
	return s
}
