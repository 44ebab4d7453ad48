package crawler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/places-crawler/internal/model"
	"github.com/sells-group/places-crawler/internal/resilience"
	"github.com/sells-group/places-crawler/pkg/valueserp"
)

// Batch is one page of provider results.
type Batch struct {
	Results          []valueserp.PlaceResult
	CreditsRemaining int
}

// Searcher issues one provider request per (coordinate, query, page) and
// separates fatal account conditions from soft request failures.
type Searcher struct {
	client valueserp.Client
	log    *zap.Logger
}

// NewSearcher wraps a provider client.
func NewSearcher(c valueserp.Client) *Searcher {
	return &Searcher{
		client: c,
		log:    zap.L().With(zap.String("component", "crawler.searcher")),
	}
}

// Fetch requests one page. A rejected key or exhausted quota is returned as a
// *resilience.FatalError. Any other failure is logged and reported as a nil
// batch with a nil error, as is a response without places_results.
func (s *Searcher) Fetch(ctx context.Context, coord model.Coordinate, query string, page int) (*Batch, error) {
	req := valueserp.SearchRequest{
		Query:     query,
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
		Zoom:      coord.Zoom,
		Page:      page,
	}
	log := s.log.With(
		zap.String("query", query),
		zap.String("location", req.Location()),
		zap.Int("page", page),
	)

	resp, err := s.client.Search(ctx, req)
	switch {
	case errors.Is(err, valueserp.ErrUnauthorized):
		return nil, resilience.NewFatalError(err, "unauthorized")
	case errors.Is(err, valueserp.ErrQuotaExhausted):
		return nil, resilience.NewFatalError(err, "quota exhausted")
	case err != nil:
		log.Warn("search request failed",
			zap.Error(err),
			zap.Bool("transient", resilience.IsTransient(err)),
		)
		return nil, nil
	}

	if resp == nil || resp.PlacesResults == nil {
		log.Info("no places in response")
		return nil, nil
	}

	log.Info("page fetched",
		zap.Int("results", len(resp.PlacesResults)),
		zap.Int("credits_remaining", resp.RequestInfo.CreditsRemaining),
	)

	return &Batch{
		Results:          resp.PlacesResults,
		CreditsRemaining: resp.RequestInfo.CreditsRemaining,
	}, nil
}
