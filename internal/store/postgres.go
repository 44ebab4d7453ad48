package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/places-crawler/internal/db"
	"github.com/sells-group/places-crawler/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS places (
	place_id  TEXT PRIMARY KEY,
	position  INTEGER NOT NULL DEFAULT 0,
	title     TEXT NOT NULL DEFAULT '',
	link      TEXT NOT NULL DEFAULT '',
	address   TEXT NOT NULL DEFAULT '',
	city      TEXT NOT NULL DEFAULT '',
	state     TEXT NOT NULL DEFAULT '',
	phone     TEXT NOT NULL DEFAULT '',
	rating    DOUBLE PRECISION,
	reviews   INTEGER,
	latitude  DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	region    TEXT NOT NULL,
	loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_places_region ON places(region);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InsertPlaces loads records through COPY into a temp table and inserts the
// new place IDs in one statement.
func (s *PostgresStore) InsertPlaces(ctx context.Context, recs []model.ResultRecord) (int64, error) {
	recs = identified(recs)
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = placeRow(r)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "places",
		Columns:      placeColumns,
		ConflictKeys: []string{"place_id"},
		DoNothing:    true,
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert places")
	}
	return n, nil
}

func (s *PostgresStore) CountPlaces(ctx context.Context, region string) (int64, error) {
	var n int64
	var err error
	if region == "" {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM places`).Scan(&n)
	} else {
		err = s.pool.QueryRow(ctx, `SELECT count(*) FROM places WHERE region = $1`, region).Scan(&n)
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: count places")
	}
	return n, nil
}
