// Package store loads crawl output into a relational database for querying.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/places-crawler/internal/model"
)

// Store persists result records keyed by place ID.
type Store interface {
	// InsertPlaces inserts records whose place ID is not stored yet and
	// returns how many were inserted. Existing rows are left untouched.
	InsertPlaces(ctx context.Context, recs []model.ResultRecord) (int64, error)
	// CountPlaces returns the number of stored places for region, or for all
	// regions when region is empty.
	CountPlaces(ctx context.Context, region string) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, dsn, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// placeColumns is the column order shared by both backends.
var placeColumns = []string{
	"place_id", "position", "title", "link", "address", "city", "state",
	"phone", "rating", "reviews", "latitude", "longitude", "region",
}

func placeRow(r model.ResultRecord) []any {
	return []any{
		r.PlaceID, r.Position, r.Title, r.Link, r.Address, r.City, r.State,
		r.Phone, deref(r.Rating), deref(r.Reviews), deref(r.Latitude), deref(r.Longitude), r.Region,
	}
}

// deref maps a nil pointer to a NULL parameter.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// identified drops records without a place ID.
func identified(recs []model.ResultRecord) []model.ResultRecord {
	out := make([]model.ResultRecord, 0, len(recs))
	for _, r := range recs {
		if r.PlaceID != "" {
			out = append(out, r)
		}
	}
	return out
}
